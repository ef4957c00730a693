package output

import (
	"fmt"
	"strings"

	"github.com/brdforge/brdforge/internal/ailink"
)

// MarkdownFormatter renders a generated document as a Markdown BRD.
type MarkdownFormatter struct{}

// FormatDocument renders the document title, each generated section under its
// own heading, and any failed sections at the end.
func (f *MarkdownFormatter) FormatDocument(result *ailink.DocumentResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = "Business Requirements Document"
	}
	sb.WriteString("# " + title + "\n")

	for _, section := range result.Sections {
		if section == nil {
			continue
		}
		sb.WriteString("\n## " + section.Section + "\n\n")
		sb.WriteString(strings.TrimSpace(section.Content))
		sb.WriteString("\n")
	}

	if len(result.Errors) > 0 {
		sb.WriteString("\n## Generation Errors\n\n")
		for _, callErr := range result.Errors {
			if callErr == nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("- **%s**: %s (%s)\n", callErr.Section, callErr.Message, callErr.Code))
		}
	}

	return sb.String(), nil
}
