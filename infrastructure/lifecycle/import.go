package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ahrav/go-quorum/infrastructure/consensus"
	"github.com/ahrav/go-quorum/infrastructure/integrity"
	"github.com/ahrav/go-quorum/internal/domain"
)

// Review findings are tracked as repository-wide tier 3 findings.
const (
	ReviewDetector = "review"
	ReviewFile     = "."
	ReviewTier     = 3
)

// ReviewFindingID returns the stable ID of a consensus finding. The summary
// hash keeps distinct findings apart when reviewers reuse an identifier.
func ReviewFindingID(f domain.Finding) string {
	sum := sha256.Sum256([]byte(f.Summary))
	return fmt.Sprintf("review::%s::holistic::%s::%s::%s",
		ReviewFile, f.Dimension, findingSlug(f), hex.EncodeToString(sum[:])[:8])
}

func findingSlug(f domain.Finding) string {
	if ident := strings.TrimSpace(f.Identifier); ident != "" {
		return ident
	}
	if tokens := consensus.SummaryTokens(f.Summary); len(tokens) > 0 {
		return strings.Join(tokens, "_")
	}
	return "finding"
}

// ImportReviewFindings converts merged consensus findings into the form
// Reconcile consumes.
func ImportReviewFindings(mc domain.MergedConsensus, lang string) []domain.PersistedFinding {
	out := make([]domain.PersistedFinding, 0, len(mc.Findings))
	for _, f := range mc.Findings {
		detail := map[string]any{
			"dimension":    f.Dimension,
			"impact_scope": f.ImpactScope,
			"fix_scope":    f.FixScope,
		}
		if f.Identifier != "" {
			detail["identifier"] = f.Identifier
		}
		if len(f.RelatedFiles) > 0 {
			detail["related_files"] = append([]string(nil), f.RelatedFiles...)
		}
		if len(f.Evidence) > 0 {
			detail["evidence"] = append([]string(nil), f.Evidence...)
		}
		if f.Suggestion != "" {
			detail["suggestion"] = f.Suggestion
		}
		if len(f.MergedFrom) > 0 {
			detail["merged_from"] = append([]string(nil), f.MergedFrom...)
		}

		conf := f.Confidence
		if !conf.Valid() {
			conf = domain.ConfidenceMedium
		}
		out = append(out, domain.PersistedFinding{
			ID:         ReviewFindingID(f),
			Detector:   ReviewDetector,
			File:       ReviewFile,
			Tier:       ReviewTier,
			Confidence: conf,
			Summary:    f.Summary,
			Detail:     detail,
			Status:     domain.StatusOpen,
			Lang:       lang,
		})
	}
	return out
}

// StoreAssessments commits integrity-adjusted scores into state. Dimensions
// absent from assessments keep their previous record.
func StoreAssessments(state *domain.ReviewState, assessments map[string]domain.AssessmentScore, record domain.IntegrityRecord, source string, now time.Time) {
	state.EnsureDefaults()
	for dim, a := range assessments {
		stored := domain.StoredAssessment{
			Score:            a.Score,
			IntegrityPenalty: a.IntegrityPenalty,
			Source:           source,
			AssessedAt:       now,
		}
		if a.IsComposite() {
			stored.Components = append([]string(nil), a.Components...)
			stored.ComponentScores = make(map[string]float64, len(a.ComponentScores))
			for k, v := range a.ComponentScores {
				stored.ComponentScores[k] = v
			}
		}
		state.Assessments[dim] = stored
	}
	rec := record
	state.SubjectiveIntegrity = &rec
}

// ApplyIntegrityResets zeroes every stored assessment the guard reset,
// including dimensions committed by earlier runs. The original source and
// assessment time are kept.
func ApplyIntegrityResets(state *domain.ReviewState, rec domain.IntegrityRecord) {
	state.EnsureDefaults()
	for _, dim := range rec.ResetDimensions {
		stored, ok := state.Assessments[dim]
		if !ok {
			continue
		}
		stored.Score = 0
		stored.IntegrityPenalty = integrity.PenaltyTargetMatchReset
		state.Assessments[dim] = stored
	}
}

// RecordReviewedFiles stamps every file a review read.
func RecordReviewedFiles(state *domain.ReviewState, files []string, now time.Time) {
	state.EnsureDefaults()
	for _, f := range files {
		if f == "" {
			continue
		}
		state.ReviewedFiles[f] = now
	}
}

// ReviewedFiles returns the union of files assigned to batches, sorted.
func ReviewedFiles(batches []domain.Batch) []string {
	set := make(map[string]struct{})
	for _, b := range batches {
		for _, f := range b.FilesToRead {
			set[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
