// Package lifecycle reconciles findings from a new review against the
// persisted finding history.
//
// Persisted findings are never deleted. Each reconciliation upserts the
// current findings, suppresses those matched by ignore patterns, reopens
// findings that were resolved but reappeared, and auto-resolves open findings
// the scan no longer reports. Status changes go through a statekit machine
// so illegal transitions cannot be written.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
)

// ChronicReopenThreshold is the reopen count at which an open finding is
// reported as a chronic reopener.
const ChronicReopenThreshold = 2

// Notes written onto findings by reconciliation.
const (
	noteSuppressedUnresolved = "Suppressed by ignore pattern; remains unresolved for score integrity"
	noteDisappeared          = "Disappeared from scan; likely fixed"
	attestationDisappeared   = "Disappeared from detector output"
)

// Attestation kinds.
const (
	AttestationScanVerified = "scan_verified"
	AttestationManual       = "manual"
)

// ReconcileOptions scopes one reconciliation pass.
type ReconcileOptions struct {
	// IgnorePatterns suppress matching findings; see MatchIgnore.
	IgnorePatterns []string

	// ScanPath limits auto-resolution to findings under this path. Empty or
	// "." covers the whole repository.
	ScanPath string

	// Detectors limits auto-resolution to findings from these detectors.
	// Empty covers every detector.
	Detectors []string

	// Lang limits auto-resolution to findings recorded for this language.
	// Findings without a language are always in scope.
	Lang string

	// Now stamps every change. Zero uses time.Now in UTC.
	Now time.Time

	// Integrity and DimensionScores are copied into the scan history entry.
	Integrity       *domain.IntegrityRecord
	DimensionScores map[string]float64

	// HistoryLimit caps the scan history. Zero uses domain.MaxScanHistory.
	HistoryLimit int

	Logger *slog.Logger
}

func (o ReconcileOptions) withDefaults() ReconcileOptions {
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = domain.MaxScanHistory
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// inScope reports whether an absent finding may be auto-resolved.
func (o ReconcileOptions) inScope(f domain.PersistedFinding) bool {
	if len(o.Detectors) > 0 && !contains(o.Detectors, f.Detector) {
		return false
	}
	if o.Lang != "" && f.Lang != "" && f.Lang != o.Lang {
		return false
	}
	root := strings.TrimSuffix(o.ScanPath, "/")
	if root == "" || root == "." {
		return true
	}
	return f.File == root || strings.HasPrefix(f.File, root+"/")
}

// Reconcile merges current into state and returns what changed. Running it
// twice with the same input leaves the findings unchanged the second time.
func Reconcile(state *domain.ReviewState, current []domain.PersistedFinding, opts ReconcileOptions) domain.ScanDiff {
	opts = opts.withDefaults()
	state.EnsureDefaults()
	now := opts.Now

	diff := domain.ScanDiff{
		IgnorePatterns:   len(opts.IgnorePatterns),
		RawFindings:      len(current),
		ChronicReopeners: make([]domain.PersistedFinding, 0),
	}

	seen := make(map[string]struct{}, len(current))
	for _, f := range current {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}

		pattern, ignored := MatchIgnore(f.ID, f.File, opts.IgnorePatterns)
		if ignored {
			diff.Ignored++
		}

		existing, ok := state.Findings[f.ID]
		if !ok {
			created := newFinding(f, now)
			if ignored {
				suppress(&created, pattern, now)
			} else {
				diff.New++
			}
			state.Findings[f.ID] = created
			continue
		}

		if upsert(&existing, f, pattern, ignored, now, opts.Logger) {
			diff.Reopened++
		}
		state.Findings[f.ID] = existing
	}
	diff.TotalCurrent = len(seen)

	for _, id := range sortedIDs(state.Findings) {
		if _, ok := seen[id]; ok {
			continue
		}
		f := state.Findings[id]
		if f.Status != domain.StatusOpen {
			continue
		}
		if !opts.inScope(f) {
			diff.SkippedOutOfScope++
			continue
		}
		if err := autoResolve(&f, now); err != nil {
			opts.Logger.Warn("auto-resolve rejected", "finding", id, "error", err)
			continue
		}
		state.Findings[id] = f
		diff.AutoResolved++
	}

	for _, id := range sortedIDs(state.Findings) {
		f := state.Findings[id]
		if f.Status == domain.StatusOpen && f.ReopenCount >= ChronicReopenThreshold {
			diff.ChronicReopeners = append(diff.ChronicReopeners, f)
		}
	}

	if diff.RawFindings > 0 {
		diff.SuppressedPct = domain.RoundTo(float64(diff.Ignored)/float64(diff.RawFindings)*100, 1)
	}

	appendHistory(state, diff, opts)
	state.ScanCount++
	state.LastScan = &now

	opts.Logger.Info("findings reconciled",
		"new", diff.New,
		"auto_resolved", diff.AutoResolved,
		"reopened", diff.Reopened,
		"ignored", diff.Ignored,
		"chronic_reopeners", len(diff.ChronicReopeners),
	)
	return diff
}

func newFinding(f domain.PersistedFinding, now time.Time) domain.PersistedFinding {
	f.Status = domain.StatusOpen
	f.FirstSeen = now
	f.LastSeen = now
	f.ReopenCount = 0
	f.ResolvedAt = nil
	f.ResolutionAttestation = nil
	clearSuppression(&f)
	return f
}

// upsert refreshes an existing finding from its current sighting and
// reports whether it was reopened.
func upsert(existing *domain.PersistedFinding, cur domain.PersistedFinding, pattern string, ignored bool, now time.Time, logger *slog.Logger) bool {
	existing.LastSeen = now
	if cur.Confidence != "" {
		existing.Confidence = cur.Confidence
	}
	if cur.Summary != "" {
		existing.Summary = cur.Summary
	}
	if cur.Detail != nil {
		existing.Detail = cur.Detail
	}

	if ignored {
		wasSuppressed := existing.Suppressed
		switch existing.Status {
		case domain.StatusFixed, domain.StatusAutoResolved, domain.StatusFalsePositive:
			next, err := Transition(existing.ID, existing.Status, EventSuppress)
			if err != nil {
				logger.Warn("suppress rejected", "finding", existing.ID, "error", err)
				break
			}
			existing.Status = next
			existing.ResolvedAt = nil
			existing.ResolutionAttestation = nil
			existing.Note = noteSuppressedUnresolved
		}
		if !wasSuppressed {
			suppress(existing, pattern, now)
		} else {
			existing.SuppressionPattern = pattern
		}
		return false
	}

	clearSuppression(existing)
	if existing.Status != domain.StatusFixed && existing.Status != domain.StatusAutoResolved {
		return false
	}

	was := existing.Status
	next, err := Transition(existing.ID, was, EventReappear)
	if err != nil {
		logger.Warn("reopen rejected", "finding", existing.ID, "error", err)
		return false
	}
	existing.Status = next
	existing.ReopenCount++
	existing.ResolvedAt = nil
	existing.ResolutionAttestation = nil
	existing.Note = fmt.Sprintf("Reopened (x%d): reappeared in scan (was %s)", existing.ReopenCount, was)
	return true
}

func autoResolve(f *domain.PersistedFinding, now time.Time) error {
	next, err := Transition(f.ID, f.Status, EventAutoResolve)
	if err != nil {
		return err
	}
	f.Status = next
	f.ResolvedAt = &now
	f.Note = noteDisappeared
	f.ResolutionAttestation = &domain.ResolutionAttestation{
		Kind:         AttestationScanVerified,
		Text:         attestationDisappeared,
		AttestedAt:   now,
		ScanVerified: true,
	}
	clearSuppression(f)
	return nil
}

func suppress(f *domain.PersistedFinding, pattern string, now time.Time) {
	f.Suppressed = true
	f.SuppressedAt = &now
	f.SuppressionPattern = pattern
}

func clearSuppression(f *domain.PersistedFinding) {
	f.Suppressed = false
	f.SuppressedAt = nil
	f.SuppressionPattern = ""
}

func appendHistory(state *domain.ReviewState, diff domain.ScanDiff, opts ReconcileOptions) {
	entry := domain.ScanHistoryEntry{
		Timestamp:           opts.Now,
		Lang:                opts.Lang,
		Open:                state.StatusCounts()[domain.StatusOpen],
		DiffNew:             diff.New,
		DiffResolved:        diff.AutoResolved,
		Reopened:            diff.Reopened,
		Ignored:             diff.Ignored,
		RawFindings:         diff.RawFindings,
		SuppressedPct:       diff.SuppressedPct,
		IgnorePatterns:      diff.IgnorePatterns,
		SubjectiveIntegrity: opts.Integrity,
		DimensionScores:     opts.DimensionScores,
	}
	state.ScanHistory = append(state.ScanHistory, entry)
	if over := len(state.ScanHistory) - opts.HistoryLimit; over > 0 {
		state.ScanHistory = append([]domain.ScanHistoryEntry(nil), state.ScanHistory[over:]...)
	}
}

func sortedIDs(m map[string]domain.PersistedFinding) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
