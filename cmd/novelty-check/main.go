// Package main is the entry point for the novelty-check CLI: multi-channel
// novelty assessment for invention submissions.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "novelty-check",
	Short: "Assess an invention's novelty across web, retail, and patent channels",
	Long: `novelty-check runs three concurrent search agents against an invention
description: a general web search, a retail marketplace search, and a patent
registry search. Each channel's findings are scored for similarity by a
language model, then blended into a single risk verdict with a
recommendation and next steps.

Results are cached per channel and every run can be appended to a per-user
memory log for later retrieval.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./novelty-check.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
