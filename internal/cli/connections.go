package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

var (
	connStatus string
	connLimit  int
)

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "List and review captured connections",
	Long: `List connections captured for a user and move them through the review
lifecycle (draft -> approved -> archived).

Examples:
  fieldnotes connections --user alice
  fieldnotes connections --user alice --status draft
  fieldnotes connections approve connection:abc123
  fieldnotes connections archive connection:abc123
  fieldnotes connections history connection:abc123`,
	RunE: runListConnections,
}

var connShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one connection in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowConnection,
}

var connApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a draft connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(args[0], models.StatusApproved)
	},
}

var connArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a connection (excluded from matching)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(args[0], models.StatusArchived)
	},
}

var connHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the encounter log for a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	connectionsCmd.Flags().StringVarP(&connStatus, "status", "s", "", "filter by status (draft, approved, archived)")
	connectionsCmd.Flags().IntVarP(&connLimit, "limit", "n", 50, "max results")

	connectionsCmd.AddCommand(connShowCmd)
	connectionsCmd.AddCommand(connApproveCmd)
	connectionsCmd.AddCommand(connArchiveCmd)
	connectionsCmd.AddCommand(connHistoryCmd)
}

func runListConnections(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	ctx := context.Background()

	list, err := apiClient.ListConnections(ctx, userID, models.ConnectionStatus(connStatus), connLimit)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No connections found.")
		return nil
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		fmt.Printf("%-28s %-9s %-20s %-20s %-4s %s\n",
			"ID", "STATUS", "NAME", "COMPANY", "MET", "TOPICS")
	}
	for _, conn := range list {
		id := conn.ID.String()
		review := ""
		if conn.NeedsReview {
			review = " (review)"
		}
		if interactive {
			fmt.Printf("%-28s %-9s %-20s %-20s %-4d %s%s\n",
				id, conn.Status,
				truncate(conn.Name.Value, 20),
				truncate(conn.Company.Value, 20),
				conn.EncounterCount,
				truncate(strings.Join(conn.Topics, ", "), 40),
				review)
		} else {
			fmt.Printf("%s\t%s\t%s\t%s\t%d\n",
				id, conn.Status, conn.Name.Value, conn.Company.Value, conn.EncounterCount)
		}
	}
	return nil
}

func runShowConnection(cmd *cobra.Command, args []string) error {
	conn, err := apiClient.GetConnection(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}

	fmt.Printf("%s  [%s]", conn.ID.String(), conn.Status)
	if conn.NeedsReview {
		fmt.Print("  needs review")
	}
	fmt.Printf("\nEncounters: %d\n", conn.EncounterCount)

	printField := func(label, value, confidence string) {
		if value == "" {
			return
		}
		fmt.Printf("%-13s %s (%s)\n", label+":", value, confidence)
	}
	printField("Name", conn.Name.Value, string(conn.Name.Confidence))
	printField("Company", conn.Company.Value, string(conn.Company.Confidence))
	printField("Role", conn.Role.Value, string(conn.Role.Confidence))
	printField("Institution", conn.Institution.Value, string(conn.Institution.Confidence))
	printField("Major", conn.Major.Value, string(conn.Major.Confidence))

	if conn.Signature != "" {
		fmt.Printf("Signature:    %s\n", conn.Signature)
	}
	for _, sig := range conn.PastSignatures {
		fmt.Printf("  (past)      %s\n", sig)
	}
	if conn.EnvironmentText != "" {
		fmt.Printf("Environment:  %s\n", conn.EnvironmentText)
	}

	printList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("%s:\n", label)
		for _, item := range items {
			fmt.Printf("  - %s\n", item)
		}
	}
	printList("Topics", conn.Topics)
	printList("Challenges", conn.Challenges)
	printList("Hooks", conn.Hooks)
	printList("Personal", conn.PersonalFacts)
	return nil
}

func setStatus(id string, status models.ConnectionStatus) error {
	conn, err := apiClient.SetConnectionStatus(context.Background(), id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	fmt.Printf("%s -> %s\n", conn.ID.String(), conn.Status)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	interactions, err := apiClient.ListInteractions(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("list interactions: %w", err)
	}
	if len(interactions) == 0 {
		fmt.Println("No interactions recorded.")
		return nil
	}

	for _, ia := range interactions {
		where := ia.Event
		if ia.LocationName != "" {
			if where != "" {
				where += ", "
			}
			where += ia.LocationName
		}
		if where == "" {
			where = "(unknown)"
		}
		fmt.Printf("%s  %s  %s  %s\n",
			ia.StartedAt.Format(time.DateTime),
			formatDuration(ia.DurationSeconds),
			where,
			strings.Join(ia.Topics, ", "))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return d.Round(time.Second).String()
}
