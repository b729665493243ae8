package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-quorum/infrastructure/dispatch"
	"github.com/ahrav/go-quorum/internal/application"
)

func newMergeCmd(flags *globalFlags) *cobra.Command {
	var (
		results    []string
		dimensions []string
		target     float64
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge raw batch outputs into one consensus without touching the state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer e.flushMetrics()

			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			opts := application.MergeOptions{AllowedDimensions: dimensions, Target: e.cfg.Integrity.Target}
			if cmd.Flags().Changed("target") {
				opts.Target = &target
			}

			mc, rec, err := svc.MergeOutputs(contextOf(cmd), results, opts)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := dispatch.WriteJSON(outPath, mc); err != nil {
					return err
				}
				fmt.Fprintf(e.out, "Merged %d batch(es) into %s (integrity: %s)\n", mc.ReviewQuality.BatchCount, outPath, rec.Status)
				return nil
			}
			enc := json.NewEncoder(e.out)
			enc.SetIndent("", "  ")
			return enc.Encode(mc)
		},
	}
	cmd.Flags().StringSliceVar(&results, "results", nil, "raw batch output files, in batch order")
	cmd.Flags().StringSliceVar(&dimensions, "dimensions", nil, "allowed dimensions (default: any)")
	cmd.Flags().Float64Var(&target, "target", 0, "strict target score for the integrity guard")
	cmd.Flags().StringVar(&outPath, "out", "", "write the consensus here instead of stdout")
	_ = cmd.MarkFlagRequired("results")
	return cmd
}
