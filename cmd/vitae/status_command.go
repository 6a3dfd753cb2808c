package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vitae/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and review status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.apiClient().Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Daemon", colorize)

			runningKind := statusOK
			if !status.Running {
				runningKind = statusError
			}
			lines = append(lines,
				renderStatusLine("Running", runningKind, yesNo(status.Running), colorize),
				renderStatusLine("Workers", statusInfo, strconv.Itoa(status.Workers), colorize),
				renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize),
				"",
			)
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			fmt.Fprintln(out, strings.Join(renderSectionHeader("Queue", colorize), "\n"))
			fmt.Fprintln(out, renderTable(
				[]string{"Pending", "Processing", "Retrying", "Completed", "Failed", "Cancelled"},
				[][]string{{
					strconv.Itoa(status.Queue.Pending),
					strconv.Itoa(status.Queue.Processing),
					strconv.Itoa(status.Queue.Retrying),
					strconv.Itoa(status.Queue.Completed),
					strconv.Itoa(status.Queue.Failed),
					strconv.Itoa(status.Queue.Cancelled),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "  Throughput: %.1f items/hour   Avg processing: %s   Est. drain: %s\n\n",
				status.Queue.ThroughputPerHour,
				(time.Duration(status.Queue.AvgProcessingMS) * time.Millisecond).Round(time.Millisecond),
				(time.Duration(status.Queue.EstimatedDrainSecs) * time.Second).Round(time.Second),
			)

			fmt.Fprintln(out, strings.Join(renderSectionHeader("Reviews", colorize), "\n"))
			fmt.Fprintf(out, "  Pending: %d   Completed: %d   Auto-approval rate: %.0f%%   Mean score: %s\n",
				status.Reviews.Pending,
				status.Reviews.Completed,
				status.Reviews.AutomatedApprovalRate*100,
				formatScore(status.Reviews.MeanQualityScore),
			)
			if len(status.Reviews.ReviewerLoad) > 0 {
				loads := make([]string, 0, len(status.Reviews.ReviewerLoad))
				for reviewer, load := range status.Reviews.ReviewerLoad {
					loads = append(loads, fmt.Sprintf("%s=%d", reviewer, load))
				}
				fmt.Fprintf(out, "  Reviewer load: %s\n", strings.Join(loads, " "))
			}
			fmt.Fprintln(out)

			if len(status.Breakers) > 0 {
				fmt.Fprintln(out, strings.Join(renderSectionHeader("Circuit Breakers", colorize), "\n"))
				for _, breaker := range status.Breakers {
					lines := renderStatusLine(breaker.Operation, breakerKind(breaker), breakerMessage(breaker), colorize)
					fmt.Fprintln(out, lines)
				}
				fmt.Fprintln(out)
			}

			if len(status.Executor) > 0 {
				fmt.Fprintln(out, strings.Join(renderSectionHeader("Recent Failures", colorize), "\n"))
				rows := make([][]string, 0, len(status.Executor))
				for _, failure := range status.Executor {
					rows = append(rows, []string{
						formatTimestamp(failure.At),
						failure.Operation,
						displayLabel(failure.Kind),
						strconv.Itoa(failure.Attempt),
						truncate(failure.Message, 60),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"When", "Operation", "Kind", "Attempt", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func breakerKind(breaker api.BreakerStatus) statusKind {
	switch breaker.State {
	case "open":
		return statusError
	case "half_open":
		return statusWarn
	default:
		return statusOK
	}
}

func breakerMessage(breaker api.BreakerStatus) string {
	message := displayLabel(breaker.State)
	if breaker.ConsecutiveFailures > 0 {
		message += fmt.Sprintf(" (%d consecutive failures)", breaker.ConsecutiveFailures)
	}
	return message
}
