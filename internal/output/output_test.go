package output

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brdforge/brdforge/internal/ailink"
)

func sampleDocument() *ailink.DocumentResult {
	return &ailink.DocumentResult{
		Title: "Inventory Portal",
		Sections: []*ailink.SectionResult{
			{
				Section:          "Executive Summary",
				Content:          "The portal consolidates inventory tracking.",
				ProviderID:       "openai-primary",
				Model:            "gpt-4-turbo-preview",
				Attempts:         1,
				PromptTokens:     120,
				CompletionTokens: 480,
			},
			{
				Section:    "Business Logic",
				Content:    "Orders decrement stock on confirmation.",
				ProviderID: "openai-primary",
				Model:      "gpt-4-turbo-preview",
				Attempts:   3,
			},
		},
		Errors: []*ailink.CallError{
			{Section: "Risks and Mitigations", Code: "AILINK_RETRIES_EXHAUSTED", Message: "Max retries (5) exceeded: 429"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("yaml")
	require.Error(t, err)
}

func TestMarkdownFormatter(t *testing.T) {
	formatter := &MarkdownFormatter{}

	rendered, err := formatter.FormatDocument(sampleDocument())
	require.NoError(t, err)

	require.Contains(t, rendered, "# Inventory Portal")
	require.Contains(t, rendered, "## Executive Summary")
	require.Contains(t, rendered, "The portal consolidates inventory tracking.")
	require.Contains(t, rendered, "## Generation Errors")
	require.Contains(t, rendered, "Risks and Mitigations")
	require.Contains(t, rendered, "AILINK_RETRIES_EXHAUSTED")
}

func TestMarkdownFormatterDefaultsTitle(t *testing.T) {
	formatter := &MarkdownFormatter{}

	rendered, err := formatter.FormatDocument(&ailink.DocumentResult{})
	require.NoError(t, err)
	require.Contains(t, rendered, "# Business Requirements Document")
}

func TestTableFormatter(t *testing.T) {
	formatter := &TableFormatter{}

	rendered, err := formatter.FormatDocument(sampleDocument())
	require.NoError(t, err)

	require.Contains(t, rendered, "Executive Summary")
	require.Contains(t, rendered, "openai-primary")
	require.Contains(t, rendered, "AILINK_RETRIES_EXHAUSTED")
	require.Contains(t, rendered, "2/3 generated")
}

func TestJSONFormatter(t *testing.T) {
	formatter := &JSONFormatter{Indent: true}

	rendered, err := formatter.FormatDocument(sampleDocument())
	require.NoError(t, err)
	require.Contains(t, rendered, `"title": "Inventory Portal"`)
	require.Contains(t, rendered, `"section": "Executive Summary"`)
}
