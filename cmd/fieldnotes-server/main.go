// Package main provides the fieldnotes server binary. It is equivalent
// to "fieldnotes serve" for deployments that only ship the server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fieldnotes-ai/fieldnotes/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.ExecuteServe(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
