package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/sift/internal/discovery"
)

var (
	discoverMaxResults int
	batchConcurrent    bool
)

func init() {
	discoverRunCmd.Flags().IntVar(&discoverMaxResults, "max-results", 0, "Per-source result cap (0 uses the configured default)")
	discoverBatchCmd.Flags().IntVar(&discoverMaxResults, "max-results", 0, "Per-source result cap (0 uses the configured default)")
	discoverBatchCmd.Flags().BoolVar(&batchConcurrent, "concurrent", false, "Run questions concurrently")
	discoverCmd.AddCommand(discoverRunCmd)
	discoverCmd.AddCommand(discoverBatchCmd)
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run discovery for research questions",
}

var discoverRunCmd = &cobra.Command{
	Use:   "run <question-id>",
	Short: "Run discovery for one research question",
	Long: `Query the question's selected sources, deduplicate the results, fold
them into the citation graph, and score each unique article against the
question.

Example:
  sift discover run q-phylo`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscoverRun,
}

func runDiscoverRun(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	max := discoverMaxResults
	if max <= 0 {
		max = e.cfg.MaxResults
	}
	res, err := e.orch.RunDiscoveryForQuestion(cmd.Context(), args[0], max)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	if humanOutput {
		printRunHuman(res)
		return nil
	}
	return outputJSON(res)
}

var discoverBatchCmd = &cobra.Command{
	Use:   "batch <question-id>...",
	Short: "Run discovery for several questions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDiscoverBatch,
}

func runDiscoverBatch(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	max := discoverMaxResults
	if max <= 0 {
		max = e.cfg.MaxResults
	}
	batch := e.orch.RunDiscoveryBatch(cmd.Context(), args, max, batchConcurrent)

	if humanOutput {
		for _, res := range batch.Results {
			printRunHuman(res)
			fmt.Println()
		}
		fmt.Printf("batch: %d questions (%d failed), %d found, %d unique, %d matched in %s\n",
			batch.QuestionsRun, batch.QuestionsFailed,
			batch.ArticlesFound, batch.ArticlesProcessed, batch.ArticlesMatched,
			formatDuration(batch.Duration))
		return nil
	}
	return outputJSON(batch)
}

func printRunHuman(res discovery.RunResult) {
	status := "ok"
	if !res.Success {
		status = "with errors"
	}
	fmt.Printf("%s: %d found, %d unique, %d matched in %s (%s)\n",
		res.QuestionID, res.ArticlesFound, res.ArticlesProcessed,
		res.ArticlesMatched, formatDuration(res.Duration), status)
	for name, stats := range res.Sources {
		fmt.Printf("  %s: %d articles, %d errors\n", name, stats.ArticlesFound, stats.Errors)
	}
	for _, msg := range res.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}
