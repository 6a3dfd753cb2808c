package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vitae/internal/api"
	"vitae/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect pending reviews and record decisions",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewDecisionCommand(ctx, "approve", review.StatusApproved, "Approve a pending review"))
	reviewCmd.AddCommand(newReviewDecisionCommand(ctx, "reject", review.StatusRejected, "Reject a pending review"))
	reviewCmd.AddCommand(newReviewDecisionCommand(ctx, "revise", review.StatusNeedsRevision, "Send a pending review back for revision"))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var includeCompleted bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review items",
		RunE: func(cmd *cobra.Command, args []string) error {
			reviews, err := ctx.apiClient().Reviews(cmd.Context(), !includeCompleted)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, reviews)
			}
			if len(reviews) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reviews")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Review", "Item", "Type", "Status", "Score", "Reviewer", "Issues"},
				buildReviewListRows(reviews),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&includeCompleted, "all", "a", false, "Include decided reviews")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newReviewDecisionCommand(ctx *commandContext, use string, status review.Status, short string) *cobra.Command {
	var reviewer string
	var notes string
	var score float64

	cmd := &cobra.Command{
		Use:   use + " <review-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reviewer) == "" {
				return fmt.Errorf("--reviewer is required")
			}
			decided, err := ctx.apiClient().Decide(cmd.Context(), args[0], api.DecisionRequest{
				Reviewer: reviewer,
				Status:   string(status),
				Notes:    notes,
				Score:    score,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Review %s for item %s recorded as %s\n",
				decided.ID, decided.ItemID, displayLabel(decided.Status))
			return nil
		},
	}

	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "", "Reviewer recording the decision")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Decision notes")
	cmd.Flags().Float64Var(&score, "score", 0, "Adjusted quality score")
	return cmd
}

func buildReviewListRows(reviews []api.ReviewSummary) [][]string {
	rows := make([][]string, 0, len(reviews))
	for _, item := range reviews {
		issues := "-"
		if len(item.CriticalIssues) > 0 {
			issues = truncate(strings.Join(item.CriticalIssues, "; "), 48)
		}
		reviewer := item.AssignedReviewer
		if reviewer == "" {
			reviewer = "-"
		}
		rows = append(rows, []string{
			item.ID,
			item.ItemID,
			displayLabel(item.Type),
			displayLabel(item.Status),
			formatScore(item.Score),
			reviewer,
			issues,
		})
	}
	return rows
}
