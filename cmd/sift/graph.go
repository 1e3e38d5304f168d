package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/sift/internal/record"
)

var networkDepth int

func init() {
	graphNetworkCmd.Flags().IntVar(&networkDepth, "depth", 1, "Traversal depth in either direction")
	graphCmd.AddCommand(graphCitingCmd)
	graphCmd.AddCommand(graphCitedCmd)
	graphCmd.AddCommand(graphNetworkCmd)
	graphCmd.AddCommand(graphSearchCmd)
	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Query the citation graph",
}

var graphCitingCmd = &cobra.Command{
	Use:   "citing <article-id>",
	Short: "List articles that cite the given article",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphCiting,
}

func runGraphCiting(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	if _, err := e.graph.Article(args[0]); err != nil {
		exitWithError(ExitNotFound, "article not found: %s", args[0])
	}
	return printArticles(e.graph.GetCitingArticles(args[0]))
}

var graphCitedCmd = &cobra.Command{
	Use:   "cited <article-id>",
	Short: "List articles the given article cites",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphCited,
}

func runGraphCited(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	if _, err := e.graph.Article(args[0]); err != nil {
		exitWithError(ExitNotFound, "article not found: %s", args[0])
	}
	return printArticles(e.graph.GetCitedArticles(args[0]))
}

var graphNetworkCmd = &cobra.Command{
	Use:   "network <article-id>",
	Short: "Show the citation neighborhood around an article",
	Long: `Show the bounded bidirectional citation neighborhood around an
article, with every edge whose endpoints both fall inside it.

Example:
  sift graph network doi:10.1093/sysbio/syaa001 --depth 2`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphNetwork,
}

func runGraphNetwork(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	network, err := e.graph.GetCitationNetwork(args[0], networkDepth)
	if err != nil {
		exitWithError(ExitNotFound, "%v", err)
	}

	if humanOutput {
		fmt.Printf("%d articles, %d citations\n", len(network.Articles), len(network.Citations))
		for _, a := range network.Articles {
			fmt.Printf("  %s  %s\n", a.ID, truncateString(a.Meta.Title, ListTitleMaxLen))
		}
		for _, c := range network.Citations {
			fmt.Printf("  %s -> %s\n", c.CitingID, c.CitedID)
		}
		return nil
	}
	return outputJSON(network)
}

var graphSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search articles by title or author substring",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphSearch,
}

func runGraphSearch(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	return printArticles(e.graph.SearchArticles(args[0]))
}

func printArticles(articles []record.CanonicalArticle) error {
	if humanOutput {
		for _, a := range articles {
			fmt.Printf("%s\n", a.ID)
			fmt.Printf("  %s\n", truncateString(a.Meta.Title, SearchTitleMaxLen))
			if len(a.Meta.Authors) > 0 {
				fmt.Printf("  %s\n", formatAuthors(a.Meta.Authors, 3))
			}
		}
		return nil
	}
	return outputJSON(articles)
}
