package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldnotes-ai/fieldnotes/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show in-memory server statistics: active sessions, per-operation
timings and extraction token usage. With --user, also shows connection
counts per review status.

Examples:
  fieldnotes stats
  fieldnotes stats --user alice`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.GetStats(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Active sessions: %d\n", stats.ActiveSessions)

	if ops := stats.Operations; ops != nil {
		fmt.Printf("Uptime: %.1f seconds\n", ops.UptimeSeconds)

		if ops.Extraction != nil {
			fmt.Printf("\nExtraction:\n")
			printOpStats(ops.Extraction)
			printTokenStats(ops.Extraction)
		}
		if ops.Embedding != nil {
			fmt.Printf("\nEmbedding:\n")
			printOpStats(ops.Embedding)
		}
		if ops.Match != nil {
			fmt.Printf("\nIdentity Match:\n")
			printOpStats(ops.Match)
		}
		if ops.DBQuery != nil {
			fmt.Printf("\nDB Query:\n")
			printOpStats(ops.DBQuery)
		}
		if ops.Finalize != nil {
			fmt.Printf("\nFinalize:\n")
			printOpStats(ops.Finalize)
		}
	}

	if len(stats.Connections) > 0 {
		fmt.Printf("\nConnections (%s):\n", userID)
		for _, sc := range stats.Connections {
			fmt.Printf("  %-10s %d\n", sc.Status, sc.Count)
		}
	}
	return nil
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Println()
	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Println()
}
