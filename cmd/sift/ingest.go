package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/sift/internal/pdf"
	"github.com/matsen/sift/internal/record"
)

var (
	ingestMarkdownPath string
	ingestAnalysisPath string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestMarkdownPath, "markdown", "", "Path to the article's markdown rendering")
	ingestCmd.Flags().StringVar(&ingestAnalysisPath, "analysis", "", "Path to a JSON analysis object to attach to the article")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf> <citations.json>",
	Short: "Fold an extracted citation list for a PDF into the graph",
	Long: `Fold a citation-extraction result into the citation graph.

The citations file holds a JSON array of extracted citations; the entry
describing the PDF itself carries "is_document_citation": true. When that
entry lacks a DOI or arXiv id, the PDF's front matter is scanned to fill
them in. The document article and every cited article are upserted, edges
added, and notes regenerated for the document's direct neighborhood.

Example:
  sift ingest paper.pdf paper.citations.json --markdown paper.md`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	pdfPath, citationsPath := args[0], args[1]

	data, err := os.ReadFile(citationsPath)
	if err != nil {
		exitWithError(ExitError, "reading citations file: %v", err)
	}
	var citations []record.ExtractedCitation
	if err := json.Unmarshal(data, &citations); err != nil {
		exitWithError(ExitDataError, "parsing citations file %s: %v", citationsPath, err)
	}

	var analysis map[string]any
	if ingestAnalysisPath != "" {
		raw, err := os.ReadFile(ingestAnalysisPath)
		if err != nil {
			exitWithError(ExitError, "reading analysis file: %v", err)
		}
		if err := json.Unmarshal(raw, &analysis); err != nil {
			exitWithError(ExitDataError, "parsing analysis file %s: %v", ingestAnalysisPath, err)
		}
	}

	backfillDocumentIdentifiers(citations, pdfPath)

	e := mustOpenEngine(cmd.Context())
	defer e.Close()

	primaryID, err := e.graph.ProcessCitations(cmd.Context(), pdfPath, ingestMarkdownPath, analysis, citations)
	if err != nil {
		exitWithError(ExitDataError, "processing citations: %v", err)
	}

	if humanOutput {
		cmd.Printf("ingested %s as %s (%d citations)\n", pdfPath, primaryID, len(citations)-1)
		return nil
	}
	return outputJSON(StatusResponse{Status: "ingested", Path: pdfPath, ID: primaryID})
}

// backfillDocumentIdentifiers scans the PDF's front matter when the
// document's own citation entry is missing identifiers. Scan failures are
// ignored; identity resolution falls back to the title.
func backfillDocumentIdentifiers(citations []record.ExtractedCitation, pdfPath string) {
	for i := range citations {
		if !citations[i].IsDocumentCitation {
			continue
		}
		if citations[i].DOI != "" && citations[i].ArXivID != "" {
			return
		}
		info, err := pdf.Identify(pdfPath)
		if err != nil {
			return
		}
		if citations[i].DOI == "" {
			citations[i].DOI = info.DOI
		}
		if citations[i].ArXivID == "" {
			citations[i].ArXivID = info.ArXivID
		}
		if citations[i].Title == "" {
			citations[i].Title = info.Title
		}
		return
	}
}
