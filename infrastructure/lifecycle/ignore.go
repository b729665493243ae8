package lifecycle

import (
	"strings"

	"github.com/tidwall/match"
)

// MatchIgnore reports the first pattern that suppresses a finding.
//
// Patterns containing "*" are globs, matched against the finding ID when
// they contain "::" and against its file otherwise. "*" crosses path
// separators. Without "*", a pattern containing "::" is an ID prefix and
// anything else must equal the file exactly.
func MatchIgnore(id, file string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if matchPattern(p, id, file) {
			return p, true
		}
	}
	return "", false
}

func matchPattern(pattern, id, file string) bool {
	if pattern == "" {
		return false
	}
	scoped := strings.Contains(pattern, "::")
	if strings.Contains(pattern, "*") {
		if scoped {
			return match.Match(id, pattern)
		}
		return match.Match(file, pattern)
	}
	if scoped {
		return strings.HasPrefix(id, pattern)
	}
	return file == pattern
}
