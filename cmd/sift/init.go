package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and verify the configuration",
	Long: `Create the SQLite database (with schema) at the configured path and
verify that the configuration loads cleanly.

Example:
  sift init
  sift --config sift.yaml init`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	if humanOutput {
		cmd.Printf("initialized database at %s\n", e.cfg.DatabasePath)
		return nil
	}
	return outputJSON(StatusResponse{Status: "initialized", Path: e.cfg.DatabasePath})
}
