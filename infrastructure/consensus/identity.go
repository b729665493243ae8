package consensus

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-quorum/internal/domain"
)

const (
	// minTokenLen is the shortest summary word that contributes to identity.
	minTokenLen = 3

	// maxIdentityTokens bounds how many sorted tokens form a summary key.
	maxIdentityTokens = 8
)

// IdentityKey returns the dedup key for a finding. An explicit identifier
// wins; otherwise the key is built from the summary's folded word set so that
// rephrasings with the same vocabulary collapse together.
func IdentityKey(f domain.Finding) string {
	dim := strings.TrimSpace(f.Dimension)
	if ident := strings.TrimSpace(f.Identifier); ident != "" {
		return dim + "::" + ident
	}
	summary := strings.TrimSpace(f.Summary)
	if tokens := SummaryTokens(summary); len(tokens) > 0 {
		if len(tokens) > maxIdentityTokens {
			tokens = tokens[:maxIdentityTokens]
		}
		return dim + "::summary::" + strings.Join(tokens, ",")
	}
	return dim + "::" + summary
}

// SummaryTokens returns the sorted distinct case-folded alphanumeric words of
// text that are at least three characters long.
func SummaryTokens(text string) []string {
	// cases.Caser keeps internal state and is not safe for concurrent use.
	folded := cases.Fold().String(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTokenLen {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
	}
	sort.Strings(tokens)
	return tokens
}
