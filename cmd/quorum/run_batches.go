package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-quorum/internal/application"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

func newRunBatchesCmd(flags *globalFlags) *cobra.Command {
	var (
		packetPath  string
		onlyBatches string
		parallel    bool
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "run-batches",
		Short: "Dispatch packet batches to the reviewer and commit the consensus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer e.flushMetrics()

			var runner ports.ReviewRunner
			if !dryRun {
				r, err := application.NewRunner(e.cfg.Runner, e.metrics, e.logger)
				if err != nil {
					return err
				}
				runner = r
			}
			svc, err := e.service(runner)
			if err != nil {
				return err
			}

			opts := application.RunOptions{OnlyBatches: onlyBatches, DryRun: dryRun}
			if cmd.Flags().Changed("parallel") {
				opts.Parallel = &parallel
			}
			packets := &application.FilePacketProvider{
				Path:               packetPath,
				DefaultTarget:      e.cfg.Integrity.Target,
				DefaultMaxFindings: e.cfg.Payload.MaxFindings,
			}

			report, err := svc.RunBatches(contextOf(cmd), packets, opts)
			var pf *domain.PartialFailure
			if errors.As(err, &pf) {
				printFailure(cmd.ErrOrStderr(), pf)
				return err
			}
			if err != nil {
				return err
			}
			printRun(e.out, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&packetPath, "packet", "", "review packet (JSON or YAML)")
	cmd.Flags().StringVar(&onlyBatches, "only-batches", "", "comma-separated 1-based batch indices to run")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run batches on the worker pool")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write prompts and packets, skip the reviewer")
	_ = cmd.MarkFlagRequired("packet")
	return cmd
}

func printRun(w io.Writer, r *application.RunReport) {
	fmt.Fprintf(w, "Run directory: %s\n", r.RunDir)
	if r.Summary.DryRun {
		fmt.Fprintf(w, "Dry run only: prompts in %s, reviewer skipped.\n", r.Summary.Prompts)
		return
	}
	fmt.Fprintf(w, "Batches: %d succeeded\n", len(r.Summary.Succeeded))
	if r.Consensus != nil {
		q := r.Consensus.ReviewQuality
		fmt.Fprintf(w, "Review quality: coverage %.3f, evidence density %.3f, high scores without risk %d, finding pressure %.3f\n",
			q.DimensionCoverage, q.EvidenceDensity, q.HighScoreWithoutRisk, q.FindingPressure)
	}
	if r.Integrity != nil && r.Integrity.Status != domain.IntegrityPass && r.Integrity.Status != domain.IntegrityDisabled {
		fmt.Fprintf(w, "Integrity: %s (%s)\n", r.Integrity.Status, strings.Join(r.Integrity.MatchedDimensions, ", "))
	}
	if d := r.Diff; d != nil {
		fmt.Fprintf(w, "Findings: +%d new, %d auto-resolved, %d reopened, %d current",
			d.New, d.AutoResolved, d.Reopened, d.TotalCurrent)
		if d.Ignored > 0 {
			fmt.Fprintf(w, ", %d ignored (%.1f%% suppressed)", d.Ignored, d.SuppressedPct)
		}
		fmt.Fprintln(w)
		for _, f := range d.ChronicReopeners {
			fmt.Fprintf(w, "  chronic reopener (x%d): %s\n", f.ReopenCount, f.ID)
		}
	}
}

func printFailure(w io.Writer, pf *domain.PartialFailure) {
	fmt.Fprintf(w, "%d of %d batch(es) failed: %s\n",
		len(pf.Report.FailedIndices), pf.Selected, domain.FormatBatchSelection(pf.Report.FailedIndices))
	for _, p := range pf.Report.LogPaths {
		fmt.Fprintf(w, "  log: %s\n", p)
	}
	for _, h := range pf.Report.Hints {
		fmt.Fprintf(w, "  hint: %s\n", h)
	}
	fmt.Fprintf(w, "Retry with: %s\n", pf.Report.RetryCommand)
}
