package domain

import "time"

// FindingStatus is the lifecycle status of a persisted finding.
type FindingStatus string

// Lifecycle statuses. Resolved-like statuses can return to StatusOpen.
const (
	StatusOpen          FindingStatus = "open"
	StatusFixed         FindingStatus = "fixed"
	StatusAutoResolved  FindingStatus = "auto_resolved"
	StatusWontfix       FindingStatus = "wontfix"
	StatusFalsePositive FindingStatus = "false_positive"
)

// AllStatuses lists every lifecycle status in counter order.
var AllStatuses = []FindingStatus{StatusOpen, StatusFixed, StatusAutoResolved, StatusWontfix, StatusFalsePositive}

// Valid reports whether s is a known status.
func (s FindingStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsSuppression reports whether s is an explicit operator suppression that
// must survive a finding's absence from a scan.
func (s FindingStatus) IsSuppression() bool {
	return s == StatusWontfix || s == StatusFalsePositive
}

// ResolutionAttestation records who or what vouched for a resolution.
type ResolutionAttestation struct {
	Kind         string    `json:"kind"`
	Text         string    `json:"text"`
	AttestedAt   time.Time `json:"attested_at"`
	ScanVerified bool      `json:"scan_verified"`
}

// PersistedFinding is a finding as tracked across runs. Its ID is
// content-addressed and never changes once written; records are never
// deleted.
type PersistedFinding struct {
	ID                    string                 `json:"id"`
	Detector              string                 `json:"detector"`
	File                  string                 `json:"file"`
	Tier                  int                    `json:"tier"`
	Confidence            Confidence             `json:"confidence"`
	Summary               string                 `json:"summary"`
	Detail                map[string]any         `json:"detail,omitempty"`
	Status                FindingStatus          `json:"status"`
	Note                  string                 `json:"note,omitempty"`
	FirstSeen             time.Time              `json:"first_seen"`
	LastSeen              time.Time              `json:"last_seen"`
	ResolvedAt            *time.Time             `json:"resolved_at,omitempty"`
	ReopenCount           int                    `json:"reopen_count"`
	Suppressed            bool                   `json:"suppressed"`
	SuppressedAt          *time.Time             `json:"suppressed_at,omitempty"`
	SuppressionPattern    string                 `json:"suppression_pattern,omitempty"`
	ResolutionAttestation *ResolutionAttestation `json:"resolution_attestation,omitempty"`
	Lang                  string                 `json:"lang,omitempty"`
}

// ScanDiff summarizes one reconciliation pass.
type ScanDiff struct {
	New               int                `json:"new"`
	AutoResolved      int                `json:"auto_resolved"`
	Reopened          int                `json:"reopened"`
	ChronicReopeners  []PersistedFinding `json:"chronic_reopeners"`
	Ignored           int                `json:"ignored"`
	IgnorePatterns    int                `json:"ignore_patterns"`
	RawFindings       int                `json:"raw_findings"`
	SuppressedPct     float64            `json:"suppressed_pct"`
	TotalCurrent      int                `json:"total_current"`
	SkippedOutOfScope int                `json:"skipped_out_of_scope,omitempty"`
}

// IntegrityStatus is the outcome of the target-collision check.
type IntegrityStatus string

// Integrity outcomes.
const (
	IntegrityPass      IntegrityStatus = "pass"
	IntegrityWarn      IntegrityStatus = "warn"
	IntegrityPenalized IntegrityStatus = "penalized"
	IntegrityDisabled  IntegrityStatus = "disabled"
)

// IntegrityRecord documents the target-collision check on a committed score
// set.
type IntegrityRecord struct {
	Status            IntegrityStatus `json:"status"`
	TargetScore       *float64        `json:"target_score"`
	MatchedCount      int             `json:"matched_count"`
	MatchedDimensions []string        `json:"matched_dimensions"`
	ResetDimensions   []string        `json:"reset_dimensions"`
}

// StoredAssessment is a committed dimension assessment.
type StoredAssessment struct {
	Score            float64            `json:"score"`
	Components       []string           `json:"components,omitempty"`
	ComponentScores  map[string]float64 `json:"component_scores,omitempty"`
	IntegrityPenalty string             `json:"integrity_penalty,omitempty"`
	Source           string             `json:"source"`
	AssessedAt       time.Time          `json:"assessed_at"`
}

// ScanHistoryEntry is one row of the bounded reconciliation history.
type ScanHistoryEntry struct {
	Timestamp           time.Time          `json:"timestamp"`
	Lang                string             `json:"lang,omitempty"`
	Open                int                `json:"open"`
	DiffNew             int                `json:"diff_new"`
	DiffResolved        int                `json:"diff_resolved"`
	Reopened            int                `json:"reopened"`
	Ignored             int                `json:"ignored"`
	RawFindings         int                `json:"raw_findings"`
	SuppressedPct       float64            `json:"suppressed_pct"`
	IgnorePatterns      int                `json:"ignore_patterns"`
	SubjectiveIntegrity *IntegrityRecord   `json:"subjective_integrity,omitempty"`
	DimensionScores     map[string]float64 `json:"dimension_scores,omitempty"`
}

// ReviewStateVersion is the current persisted document version.
const ReviewStateVersion = 1

// MaxScanHistory bounds ReviewState.ScanHistory.
const MaxScanHistory = 20

// ReviewState is the persisted finding and score history.
type ReviewState struct {
	Version             int                         `json:"version"`
	Findings            map[string]PersistedFinding `json:"findings"`
	Assessments         map[string]StoredAssessment `json:"subjective_assessments"`
	SubjectiveIntegrity *IntegrityRecord            `json:"subjective_integrity,omitempty"`
	ScanHistory         []ScanHistoryEntry          `json:"scan_history"`
	ScanCount           int                         `json:"scan_count"`
	LastScan            *time.Time                  `json:"last_scan,omitempty"`
	ReviewedFiles       map[string]time.Time        `json:"reviewed_files,omitempty"`
}

// NewReviewState returns an empty state at the current version.
func NewReviewState() *ReviewState {
	s := &ReviewState{Version: ReviewStateVersion}
	s.EnsureDefaults()
	return s
}

// EnsureDefaults fills nil collections so callers can write without checks.
func (s *ReviewState) EnsureDefaults() {
	if s.Version == 0 {
		s.Version = ReviewStateVersion
	}
	if s.Findings == nil {
		s.Findings = make(map[string]PersistedFinding)
	}
	if s.Assessments == nil {
		s.Assessments = make(map[string]StoredAssessment)
	}
	if s.ScanHistory == nil {
		s.ScanHistory = make([]ScanHistoryEntry, 0)
	}
	if s.ReviewedFiles == nil {
		s.ReviewedFiles = make(map[string]time.Time)
	}
}

// StatusCounts tallies findings per status.
func (s *ReviewState) StatusCounts() map[FindingStatus]int {
	counts := make(map[FindingStatus]int, len(AllStatuses))
	for _, st := range AllStatuses {
		counts[st] = 0
	}
	for _, f := range s.Findings {
		counts[f.Status]++
	}
	return counts
}

// Validate checks the persisted invariants: every finding is keyed by its own
// ID, carries a known status, and has a non-negative reopen count.
func (s *ReviewState) Validate() error {
	verr := NewValidationError("review state")
	for key, f := range s.Findings {
		if f.ID != key {
			verr.AddError("finding " + key + " stored under mismatched id " + f.ID)
		}
		if !f.Status.Valid() {
			verr.AddError("finding " + key + " has unknown status " + string(f.Status))
		}
		if f.ReopenCount < 0 {
			verr.AddError("finding " + key + " has negative reopen_count")
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
