// Package pdf pulls bibliographic identifiers out of PDF files. Extraction
// is best effort: a paper with no recoverable DOI or arXiv id still gets a
// title guess, and the identity resolver falls back from there.
package pdf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Identifiers are scanned on the front matter only.
const identifierPages = 3

var (
	// DOI pattern: 10.XXXX/... with a 4-9 digit registrant code.
	doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

	// arXiv identifiers as stamped on preprints, with or without the
	// "arXiv:" prefix and an optional version suffix.
	arxivPattern = regexp.MustCompile(`(?i)arxiv:\s*(\d{4}\.\d{4,5})(v\d+)?`)
)

// DocumentInfo is what could be recovered from a PDF's front matter. Any
// field may be empty.
type DocumentInfo struct {
	DOI     string
	ArXivID string
	Title   string
}

// Identify scans a PDF for a DOI, an arXiv id, and a title guess. Absent
// identifiers are not errors; only an unreadable file is.
func Identify(path string) (DocumentInfo, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return DocumentInfo{}, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	var info DocumentInfo
	maxPages := identifierPages
	if r.NumPage() < maxPages {
		maxPages = r.NumPage()
	}

	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if info.DOI == "" {
			info.DOI = findDOI(text)
		}
		if info.ArXivID == "" {
			if m := arxivPattern.FindStringSubmatch(text); m != nil {
				info.ArXivID = strings.ToLower(m[1] + m[2])
			}
		}
		if i == 1 && info.Title == "" {
			info.Title = guessTitle(text)
		}
		if info.DOI != "" && info.ArXivID != "" && info.Title != "" {
			break
		}
	}
	return info, nil
}

// findDOI returns the first plausible DOI in the text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic shape validation on a DOI candidate.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash != -1 && slash < len(doi)-1
}

// guessTitle picks the first substantial first-page line that does not look
// like a running header.
func guessTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

// isHeaderLine checks if a line is likely a header or footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "preprint") && strings.Contains(lower, "review"):
		return true
	}
	return false
}
