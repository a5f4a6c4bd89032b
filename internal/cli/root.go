// Package cli provides the command-line interface for fieldnotes.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldnotes-ai/fieldnotes/internal/client"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	serverURL string
	userID    string

	// apiClient talks to a running fieldnotes server. Commands that go
	// straight to the database (serve, schema, wipe) don't use it.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fieldnotes",
	Short: "Live conversation capture and connection memory",
	Long: `Fieldnotes turns live conversations into a durable, searchable record
of the people you meet.

A capture device streams audio and visual observations to the server,
which transcribes, extracts profile facts incrementally, matches the
person against previously met connections, and writes a connection
record when the session ends.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if userID == "" {
			userID = os.Getenv("FIELDNOTES_USER")
		}
		apiClient = client.New(serverURL)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $FIELDNOTES_SERVER_URL or http://localhost:8090)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id owning the connections")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(wipeCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteServe runs the serve command directly, for the server-only
// binary.
func ExecuteServe(args []string) error {
	rootCmd.SetArgs(append([]string{"serve"}, args...))
	return rootCmd.Execute()
}

// requireUser fails commands that need a user scope.
func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required (or set FIELDNOTES_USER)")
	}
	return nil
}
