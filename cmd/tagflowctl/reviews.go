package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
)

func reviewsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Work the manual review queue",
	}
	cmd.AddCommand(reviewsListCmd(opts))
	cmd.AddCommand(reviewsResolveCmd(opts))
	return cmd
}

func reviewsListCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reviews, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Store.ListPending(ctx, limit)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), items)
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Customer", "From", "To", "Confidence", "Reasons", "Queued"})
				for _, r := range items {
					to := "-"
					if r.Evaluation.Recommended != nil {
						to = string(r.Evaluation.Recommended.To)
					}
					tw.AppendRow(table.Row{
						r.ID, r.CustomerID, r.Evaluation.CurrentTag, to,
						fmt.Sprintf("%.2f", r.Evaluation.Confidence),
						fmt.Sprint(r.Evaluation.ReviewReasons),
						r.CreatedAt.Format("2006-01-02 15:04"),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of reviews")
	return cmd
}

func reviewsResolveCmd(opts *options) *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:       "resolve <review-id> <approve|reject>",
		Short:     "Approve (and apply) or reject a pending review",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(lifecycle.DecisionApprove), string(lifecycle.DecisionReject)},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid review id %q", args[0])
			}
			decision := lifecycle.ReviewDecision(args[1])
			if decision != lifecycle.DecisionApprove && decision != lifecycle.DecisionReject {
				return fmt.Errorf("decision must be approve or reject, got %q", args[1])
			}

			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				out, err := rt.Lifecycle.ResolveReview(ctx, id, decision, operator)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), out)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "review %d %s by %s\n", out.Review.ID, out.Review.Status, out.Review.ResolvedBy)
				if out.Result != nil {
					if !out.Result.Success {
						return fmt.Errorf("review approved but transition failed: %w", out.Result.Err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", out.Review.CustomerID, tagLabel(out.Result.PreviousTag), tagLabel(out.Result.NewTag))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator id")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
