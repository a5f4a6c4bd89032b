package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all connections and interactions",
	Long: `Delete every connection and interaction record from the database.
This cannot be undone. Asks for confirmation unless --force is given
or stdin is not a terminal.`,
	RunE: runWipe,
}

func init() {
	wipeCmd.Flags().BoolVarP(&wipeForce, "force", "f", false, "skip confirmation")
}

func runWipe(cmd *cobra.Command, args []string) error {
	if !wipeForce && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("This deletes ALL captured data. Type 'yes' to continue: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(line) != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx := context.Background()
	client, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()

	if err := client.WipeData(ctx); err != nil {
		return fmt.Errorf("wipe data: %w", err)
	}
	fmt.Println("All data deleted.")
	return nil
}
