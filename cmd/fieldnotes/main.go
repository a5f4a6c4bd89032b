// Package main provides the entry point for the fieldnotes CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fieldnotes-ai/fieldnotes/internal/cli"
)

func main() {
	// Best effort; configuration works without a .env file.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
