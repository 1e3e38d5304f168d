// Package main provides the sift CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath names an optional YAML config file
var configPath string

// verbose enables debug-level logging
var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "Standing-question literature discovery engine",
	Long: `sift turns raw bibliographic records from heterogeneous discovery
sources into a deduplicated, identity-resolved citation graph, and decides
which newly discovered records are relevant to standing research questions.

Core features:
  - Research questions with keywords, topics, and preferred authors
  - Concurrent source fan-out with per-source failure isolation
  - Identity resolution and cross-source deduplication
  - Persisted citation graph with citing/cited/network/search queries
  - LLM relevance scoring with a persistent match record per question

Data is stored in SQLite. All commands output JSON by default for agent
integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}
