package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

func evaluateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <customer-id>",
		Short: "Evaluate a customer without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				eval, err := rt.Lifecycle.Evaluate(ctx, args[0])
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), eval)
				}
				renderEvaluation(cmd.OutOrStdout(), eval)
				return nil
			})
		},
	}
}

func renderEvaluation(w io.Writer, eval *ruleengine.Evaluation) {
	fmt.Fprintf(w, "Customer: %s (%s)\n", eval.CustomerID, tagLabel(eval.CurrentTag))
	switch {
	case eval.Terminal:
		fmt.Fprintln(w, "Terminal tag: no further transitions")
		return
	case eval.Recommended == nil:
		fmt.Fprintln(w, "Recommendation: none")
	default:
		fmt.Fprintf(w, "Recommendation: %s via %s (confidence %.2f)\n",
			tagLabel(eval.Recommended.To), eval.Recommended.RuleID, eval.Confidence)
	}
	if eval.RequiresManualReview {
		reasons := make([]string, len(eval.ReviewReasons))
		for i, r := range eval.ReviewReasons {
			reasons[i] = string(r)
		}
		fmt.Fprintf(w, "Manual review: %s\n", strings.Join(reasons, ", "))
	}
	if eval.NextEvaluationDate != nil {
		fmt.Fprintf(w, "Next evaluation: %s\n", eval.NextEvaluationDate.Format("2006-01-02"))
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Rule", "To", "Condition", "Actual", "Met", "Confidence"})
	for _, rr := range eval.RuleResults {
		for _, c := range rr.Conditions {
			actual := "-"
			if c.Actual != nil {
				actual = c.Actual.String()
			}
			tw.AppendRow(table.Row{rr.RuleID, rr.To, fmt.Sprintf("%s %s %s", c.Metric, c.Operator, c.Expected), actual, c.Met, fmt.Sprintf("%.2f", c.Confidence)})
		}
		tw.AppendSeparator()
	}
	tw.Render()
}

func applyCmd(opts *options) *cobra.Command {
	var reason, operator string
	cmd := &cobra.Command{
		Use:   "apply <customer-id> <tag>",
		Short: "Manually move a customer to a status tag",
		Long: `Apply records an operator transition. The tag may be a code (ST_002) or a
label (progressing). The edge must exist in the catalog and allow manual override.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := ruleengine.ParseStatusTag(args[1])
			if err != nil {
				return err
			}
			if operator == lifecycle.AppliedByAuto {
				return fmt.Errorf("operator %q is reserved for automatic transitions", operator)
			}

			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				res := rt.Lifecycle.Apply(ctx, lifecycle.ApplyRequest{
					CustomerID: args[0],
					ToTag:      to,
					Reason:     reason,
					AppliedBy:  operator,
					Trigger:    lifecycle.TriggerOperator,
				})
				if opts.json {
					if err := printJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				}
				if !res.Success {
					return fmt.Errorf("transition rejected: %w", res.Err)
				}
				if !opts.json {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", args[0], tagLabel(res.PreviousTag), tagLabel(res.NewTag))
					for _, e := range res.ActionErrors {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", e)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the transition is applied")
	cmd.Flags().StringVar(&operator, "operator", "", "operator id recorded as applied_by")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func historyCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <customer-id>",
		Short: "Show a customer's transitions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Store.ListTransitions(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), items)
				}
				renderTransitions(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of transitions")
	return cmd
}

func renderTransitions(w io.Writer, items []*lifecycle.Transition) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"When", "From", "To", "Applied By", "Trigger", "Rule", "Confidence", "Reason"})
	for _, t := range items {
		conf := "-"
		if t.Confidence != nil {
			conf = strconv.FormatFloat(*t.Confidence, 'f', 2, 64)
		}
		tw.AppendRow(table.Row{t.CreatedAt.Format("2006-01-02 15:04"), t.FromTag, t.ToTag, t.AppliedBy, t.AutomationTrigger, t.RuleID, conf, t.Reason})
	}
	tw.Render()
}
