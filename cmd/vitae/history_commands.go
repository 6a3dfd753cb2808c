package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vitae/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List archived work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ctx.apiClient().HistoryItems(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived items")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Document", "Status", "Retries", "Completed", "Error"},
				buildHistoryItemRows(records),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	historyCmd.PersistentFlags().IntVarP(&limit, "limit", "l", 50, "Maximum records to fetch")
	historyCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	historyCmd.AddCommand(newHistoryReviewsCommand(ctx, &limit, &jsonOutput))

	return historyCmd
}

func newHistoryReviewsCommand(ctx *commandContext, limit *int, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "reviews",
		Short: "List archived review decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ctx.apiClient().HistoryReviews(cmd.Context(), *limit)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived reviews")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Review", "Item", "Type", "Status", "Score", "Reviewer", "Decided"},
				buildHistoryReviewRows(records),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func buildHistoryItemRows(records []*history.ItemRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		errText := "-"
		if record.LastError != "" {
			errText = truncate(record.LastError, 48)
		}
		rows = append(rows, []string{
			record.ID,
			truncate(record.SourcePath, 48),
			displayLabel(string(record.Status)),
			fmt.Sprintf("%d/%d", record.RetryCount, record.MaxRetries),
			formatTimestamp(record.CompletedAt),
			errText,
		})
	}
	return rows
}

func buildHistoryReviewRows(records []*history.ReviewRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		reviewer := record.Reviewer
		if reviewer == "" {
			reviewer = "-"
		}
		rows = append(rows, []string{
			record.ReviewID,
			record.ItemID,
			displayLabel(string(record.Type)),
			displayLabel(string(record.Status)),
			formatScore(record.Score),
			reviewer,
			formatTimestamp(record.DecidedAt),
		})
	}
	return rows
}
