package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/sweeper"
)

func sweepCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the daily evaluation sweep",
	}
	cmd.AddCommand(sweepRunCmd(opts))
	return cmd
}

func sweepRunCmd(opts *options) *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep this shard now, under the same lock the sweeper service uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Sweeper().RunOnce(ctx)
				if errors.Is(err, sweeper.ErrLocked) {
					return fmt.Errorf("%w: try again once the running sweep finishes", err)
				}
				if report == nil {
					return err
				}
				if opts.json {
					if jerr := printJSON(cmd.OutOrStdout(), report); jerr != nil {
						return jerr
					}
					return err
				}
				renderReport(cmd.OutOrStdout(), report, details)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "list every customer, not only the totals")
	return cmd
}

func renderReport(w io.Writer, r *sweeper.DailyEvaluationReport, details bool) {
	fmt.Fprintf(w, "Sweep %s finished in %dms", r.SweepID, r.DurationMs)
	if r.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Outcome", "Customers"})
	tw.AppendRows([]table.Row{
		{sweeper.ActionApplied, r.TransitionsApplied},
		{sweeper.ActionManualReview, r.ManualReviews},
		{sweeper.ActionNoChange, r.NoChange},
		{sweeper.ActionError, r.Errors},
	})
	tw.AppendFooter(table.Row{"evaluated", r.TotalEvaluated})
	tw.Render()
	if r.SkippedTerminal > 0 {
		fmt.Fprintf(w, "%d terminal customers skipped\n", r.SkippedTerminal)
	}

	if !details {
		return
	}
	dt := table.NewWriter()
	dt.SetOutputMirror(w)
	dt.AppendHeader(table.Row{"Customer", "Action", "From", "To", "Confidence", "Review", "Error"})
	for _, res := range r.Results {
		dt.AppendRow(table.Row{res.CustomerID, res.Action, res.FromTag, res.ToTag, fmt.Sprintf("%.2f", res.Confidence), res.ReviewID, res.Error})
	}
	dt.Render()
}
