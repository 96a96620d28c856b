// Package main provides the entry point for the bullet optimizer HTTP API
// server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bullet_optimizer",
	Short: "Resume bullet optimizer HTTP API server",
	Long:  "Bullet optimizer rewrites resume bullets against job descriptions, gathering context through a bounded Q&A loop and scoring the change, via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
