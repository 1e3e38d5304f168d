package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/sift/internal/record"
)

func init() {
	questionCmd.AddCommand(questionAddCmd)
	questionCmd.AddCommand(questionListCmd)
	rootCmd.AddCommand(questionCmd)
}

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Manage standing research questions",
}

var questionAddCmd = &cobra.Command{
	Use:   "add <file.yaml>",
	Short: "Add or update a research question from a YAML definition",
	Long: `Add or update a research question from a YAML file.

The file holds one question definition:

  id: q-phylo
  name: Scalable phylogenetics
  keywords: [phylogenetics, variational inference]
  topics: [coalescent]
  authors: []
  selected_sources: ["*"]
  min_relevance_score: 0.6

Example:
  sift question add questions/phylo.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runQuestionAdd,
}

func runQuestionAdd(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		exitWithError(ExitError, "reading question file: %v", err)
	}

	var q record.ResearchQuestion
	if err := yaml.Unmarshal(data, &q); err != nil {
		exitWithError(ExitDataError, "parsing question file %s: %v", args[0], err)
	}
	if err := q.Validate(); err != nil {
		exitWithError(ExitDataError, "invalid question: %v", err)
	}

	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	if err := e.db.UpsertQuestion(cmd.Context(), q); err != nil {
		exitWithError(ExitError, "saving question: %v", err)
	}

	if humanOutput {
		cmd.Printf("saved question %s (%s)\n", q.ID, q.Name)
		return nil
	}
	return outputJSON(StatusResponse{Status: "saved", ID: q.ID})
}

var questionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List research questions",
	Args:  cobra.NoArgs,
	RunE:  runQuestionList,
}

func runQuestionList(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	questions, err := e.db.ListQuestions(cmd.Context())
	if err != nil {
		exitWithError(ExitError, "listing questions: %v", err)
	}

	if humanOutput {
		for _, q := range questions {
			fmt.Printf("%s  %s\n", q.ID, q.Name)
			fmt.Printf("    threshold %.2f, sources %s\n", q.MinRelevanceScore, strings.Join(q.SelectedSources, ", "))
		}
		return nil
	}
	return outputJSON(questions)
}
