package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-quorum/internal/domain"
)

func newReconcileCmd(flags *globalFlags) *cobra.Command {
	var (
		findingsPath string
		target       float64
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a merged consensus file into the review state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer e.flushMetrics()

			data, err := os.ReadFile(findingsPath)
			if err != nil {
				return err
			}
			var mc domain.MergedConsensus
			if err := json.Unmarshal(data, &mc); err != nil {
				return fmt.Errorf("decode consensus %s: %w", findingsPath, err)
			}

			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			t := e.cfg.Integrity.Target
			if cmd.Flags().Changed("target") {
				t = &target
			}
			diff, err := svc.ImportConsensus(contextOf(cmd), &mc, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Findings: +%d new, %d auto-resolved, %d reopened, %d current\n",
				diff.New, diff.AutoResolved, diff.Reopened, diff.TotalCurrent)
			return nil
		},
	}
	cmd.Flags().StringVar(&findingsPath, "findings", "", "merged consensus JSON (holistic_findings_merged.json)")
	cmd.Flags().Float64Var(&target, "target", 0, "strict target score for the integrity guard")
	_ = cmd.MarkFlagRequired("findings")

	cmd.AddCommand(newResolveCmd(flags), newReopenCmd(flags))
	return cmd
}

func newResolveCmd(flags *globalFlags) *cobra.Command {
	var (
		status string
		note   string
	)
	cmd := &cobra.Command{
		Use:   "resolve <finding-id>",
		Short: "Mark a finding fixed, wontfix or false_positive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			f, err := svc.Resolve(contextOf(cmd), args[0], domain.FindingStatus(status), note)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s -> %s\n", f.ID, f.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.StatusFixed), "fixed, wontfix or false_positive")
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}

func newReopenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <finding-id>",
		Short: "Reopen a resolved finding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			f, err := svc.Reopen(contextOf(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s -> %s (reopened x%d)\n", f.ID, f.Status, f.ReopenCount)
			return nil
		},
	}
}
