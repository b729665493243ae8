package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-quorum/internal/domain"
)

// failureSignature maps log substrings to an operator hint. Matching is
// heuristic and never affects control flow.
type failureSignature struct {
	needles []string
	hint    string
}

var failureSignatures = []failureSignature{
	{
		needles: []string{"executable file not found", "command not found", "no such file or directory", "exit_code: 127"},
		hint:    "reviewer command was not found; check runner.command and PATH",
	},
	{
		needles: []string{"not logged in", "login required", "unauthorized", "authentication", "invalid api key", "401"},
		hint:    "reviewer is not authenticated; log in or set the API key before retrying",
	},
	{
		needles: []string{"exit_code: 124", "timeout after"},
		hint:    "batch exceeded its timeout; raise runner.timeout or split the batch",
	},
}

// RetryCommand renders the literal command that re-runs only the given
// 1-based batch indices.
func RetryCommand(packetPath string, failed []int) string {
	return fmt.Sprintf("quorum run-batches --packet %s --only-batches %s",
		shellQuote(packetPath), domain.FormatBatchSelection(failed))
}

// BuildFailureReport assembles the remediation for failed batches: the retry
// command, the per-batch log paths, and hints scraped from those logs.
func BuildFailureReport(failed []int, packetPath, logDir string) domain.FailureReport {
	report := domain.FailureReport{
		FailedIndices: append([]int(nil), failed...),
		RetryCommand:  RetryCommand(packetPath, failed),
		LogPaths:      make([]string, 0, len(failed)),
	}
	seen := make(map[string]struct{})
	for _, idx := range failed {
		path := filepath.Join(logDir, fmt.Sprintf("batch-%d.log", idx))
		report.LogPaths = append(report.LogPaths, path)

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, hint := range matchHints(string(data)) {
			if _, dup := seen[hint]; dup {
				continue
			}
			seen[hint] = struct{}{}
			report.Hints = append(report.Hints, hint)
		}
	}
	return report
}

func matchHints(log string) []string {
	lower := strings.ToLower(log)
	var hints []string
	for _, sig := range failureSignatures {
		for _, needle := range sig.needles {
			if strings.Contains(lower, needle) {
				hints = append(hints, sig.hint)
				break
			}
		}
	}
	return hints
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"$`\\") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
