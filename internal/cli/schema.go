package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldnotes-ai/fieldnotes/internal/config"
	"github.com/fieldnotes-ai/fieldnotes/internal/db"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply the database schema",
	Long: `Connect to SurrealDB and apply the table definitions and indexes.
Safe to run repeatedly; definitions use IF NOT EXISTS semantics.`,
	RunE: runSchema,
}

// connectDB opens a database connection from the environment config.
func connectDB(ctx context.Context) (*db.Client, error) {
	cfg := config.Load()
	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}
	client, err := db.NewClient(ctx, dbCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return client, nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()

	if err := client.InitSchema(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	fmt.Println("Schema applied.")
	return nil
}
