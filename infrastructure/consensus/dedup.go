package consensus

import (
	"strings"

	"github.com/ahrav/go-quorum/internal/domain"
)

// findingSet accumulates findings by identity key, preserving first-seen
// order.
type findingSet struct {
	order []string
	byKey map[string]*domain.Finding
}

func newFindingSet() *findingSet {
	return &findingSet{byKey: make(map[string]*domain.Finding)}
}

func (s *findingSet) add(f domain.Finding) {
	key := IdentityKey(f)
	existing, ok := s.byKey[key]
	if !ok {
		c := cloneFinding(f)
		s.byKey[key] = &c
		s.order = append(s.order, key)
		return
	}
	mergeFinding(existing, f)
}

func (s *findingSet) list() []domain.Finding {
	out := make([]domain.Finding, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.byKey[key])
	}
	return out
}

// mergeFinding folds incoming into existing. Lists are unioned in order,
// the richer text wins, and the incoming identifier is recorded when it
// differs from the surviving one.
func mergeFinding(existing *domain.Finding, incoming domain.Finding) {
	existing.RelatedFiles = unionStrings(existing.RelatedFiles, incoming.RelatedFiles)
	existing.Evidence = unionStrings(existing.Evidence, incoming.Evidence)
	existing.Summary = richer(existing.Summary, incoming.Summary)
	existing.Suggestion = richer(existing.Suggestion, incoming.Suggestion)

	if incoming.Confidence.Rank() > existing.Confidence.Rank() {
		existing.Confidence = incoming.Confidence
	}
	if existing.ImpactScope == "" {
		existing.ImpactScope = incoming.ImpactScope
	}
	if existing.FixScope == "" {
		existing.FixScope = incoming.FixScope
	}

	ident := strings.TrimSpace(incoming.Identifier)
	if ident == "" || ident == existing.Identifier {
		return
	}
	for _, m := range existing.MergedFrom {
		if m == ident {
			return
		}
	}
	existing.MergedFrom = append(existing.MergedFrom, ident)
}

// richer returns the longer of two strings; equal lengths resolve to the
// lexicographically smaller so the result does not depend on input order.
func richer(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case len(b) > len(a):
		return b
	case len(a) > len(b):
		return a
	case b < a:
		return b
	}
	return a
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, src := range [][]string{a, b} {
		for _, item := range src {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

func cloneFinding(f domain.Finding) domain.Finding {
	f.RelatedFiles = append([]string(nil), f.RelatedFiles...)
	f.Evidence = append([]string(nil), f.Evidence...)
	f.MergedFrom = append([]string(nil), f.MergedFrom...)
	return f
}
