package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
)

func newCompatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compat",
		Short: "Check device compatibility",
	}
	check := &cobra.Command{
		Use:   "check <source-id> <target-id> [<source-id> <target-id>...]",
		Short: "Check one or more device pairs",
		Long: `Check evaluates every rule between the categories of each pair, in both
directions, and reports the most restrictive verdict. Several pairs are
checked in parallel.`,
		Args: wrapArgs(func(_ *cobra.Command, args []string) error {
			if len(args) < 2 || len(args)%2 != 0 {
				return fmt.Errorf("expected pairs of device ids, got %d arguments", len(args))
			}
			return nil
		}),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			if len(args) == 2 {
				r, err := c.CheckCompatibility(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), r, func(w io.Writer) { renderResult(w, r) })
			}

			var pairs []catalog.Pair
			for p := range slices.Chunk(args, 2) {
				pairs = append(pairs, catalog.Pair{SourceDeviceID: p[0], TargetDeviceID: p[1]})
			}
			results, err := c.CheckMany(cmd.Context(), pairs)
			if err != nil {
				return err
			}
			type pairOutput struct {
				catalog.PairResult
				Error string `json:"error,omitempty"`
			}
			out := make([]pairOutput, len(results))
			var failed []error
			for i, r := range results {
				out[i] = pairOutput{PairResult: r}
				if r.Err != nil {
					out[i].Error = r.Err.Error()
					failed = append(failed, r.Err)
				}
			}
			err = a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				for _, r := range out {
					if r.Err != nil {
						fmt.Fprintf(w, "%s -> %s: %s\n", r.SourceDeviceID, r.TargetDeviceID, errorStyle.Render(r.Error))
						continue
					}
					renderResult(w, r.Result)
				}
			})
			if err != nil || len(failed) == 0 {
				return err
			}
			return fmt.Errorf("%d of %d pairs failed: %w", len(failed), len(results), failed[0])
		}),
	}
	cmd.AddCommand(check)
	return cmd
}
