package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/brdforge/brdforge/internal/ailink"
)

// TableFormatter renders a per-section summary as an ASCII table. Section
// content is elided; use the markdown formatter for the document itself.
type TableFormatter struct{}

// FormatDocument renders section outcomes as a table.
func (f *TableFormatter) FormatDocument(result *ailink.DocumentResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Section", "Status", "Provider", "Model", "Attempts", "Tokens"})

	for _, section := range result.Sections {
		if section == nil {
			continue
		}
		t.AppendRow(table.Row{
			section.Section,
			"ok",
			section.ProviderID,
			section.Model,
			section.Attempts,
			section.PromptTokens + section.CompletionTokens,
		})
	}

	for _, callErr := range result.Errors {
		if callErr == nil {
			continue
		}
		t.AppendRow(table.Row{
			callErr.Section,
			callErr.Code,
			"",
			"",
			"",
			"",
		})
	}

	generated := len(result.Sections)
	total := generated + len(result.Errors)
	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d/%d generated", generated, total),
		"",
		"",
		"",
		"",
	})

	return t.Render(), nil
}
