package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	matchSentiment  string
	matchViewed     bool
	matchBookmarked bool
)

func init() {
	matchMarkCmd.Flags().StringVar(&matchSentiment, "sentiment", "", "Set the user sentiment (like, dislike, ...)")
	matchMarkCmd.Flags().BoolVar(&matchViewed, "viewed", false, "Mark the match as viewed")
	matchMarkCmd.Flags().BoolVar(&matchBookmarked, "bookmarked", false, "Bookmark the match")
	matchCmd.AddCommand(matchListCmd)
	matchCmd.AddCommand(matchMarkCmd)
	rootCmd.AddCommand(matchCmd)
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Inspect and annotate question matches",
}

var matchListCmd = &cobra.Command{
	Use:   "list <question-id>",
	Short: "List matches for a research question",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatchList,
}

func runMatchList(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	matches, err := e.db.MatchesForQuestion(cmd.Context(), args[0])
	if err != nil {
		exitWithError(ExitError, "listing matches: %v", err)
	}

	if humanOutput {
		for _, m := range matches {
			marker := " "
			if m.Bookmarked {
				marker = "*"
			}
			fmt.Printf("%s [%.2f] %s\n", marker, m.RelevanceScore, m.ArticleID)
			if m.Reasoning != "" {
				fmt.Printf("    %s\n", truncateString(m.Reasoning, SearchTitleMaxLen))
			}
		}
		return nil
	}
	return outputJSON(matches)
}

var matchMarkCmd = &cobra.Command{
	Use:   "mark <article-id> <question-id>",
	Short: "Annotate a match (sentiment, viewed, bookmarked)",
	Long: `Annotate an existing match. Scores are immutable after creation;
only the sentiment, viewed, and bookmarked fields can change.

Example:
  sift match mark doi:10.1/a q-phylo --sentiment like --viewed`,
	Args: cobra.ExactArgs(2),
	RunE: runMatchMark,
}

func runMatchMark(cmd *cobra.Command, args []string) error {
	articleID, questionID := args[0], args[1]

	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	ctx := cmd.Context()
	if matchSentiment != "" {
		if err := e.db.SetMatchSentiment(ctx, articleID, questionID, matchSentiment); err != nil {
			exitWithError(ExitNotFound, "setting sentiment: %v", err)
		}
	}
	if cmd.Flags().Changed("viewed") {
		if err := e.db.SetMatchViewed(ctx, articleID, questionID, matchViewed); err != nil {
			exitWithError(ExitNotFound, "setting viewed: %v", err)
		}
	}
	if cmd.Flags().Changed("bookmarked") {
		if err := e.db.SetMatchBookmarked(ctx, articleID, questionID, matchBookmarked); err != nil {
			exitWithError(ExitNotFound, "setting bookmarked: %v", err)
		}
	}

	if humanOutput {
		cmd.Printf("updated match (%s, %s)\n", articleID, questionID)
		return nil
	}
	return outputJSON(StatusResponse{Status: "updated", ID: articleID})
}
