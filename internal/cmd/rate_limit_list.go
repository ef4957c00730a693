package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/brdforge/brdforge/internal/core/store"
	"github.com/brdforge/brdforge/internal/output"
)

var (
	rateLimitListOutput string
	rateLimitListOut    string
	rateLimitListOutDir string
	rateLimitListAll    bool
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored dispatch-quota state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.QuotaQuery{
			All:    rateLimitListAll,
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListQuotaStates(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(rateLimitListOut)
		outDir := strings.TrimSpace(rateLimitListOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}

		ext := outputExtension(format)
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("rate-limit.list.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, string(payload))
			return err
		}

		if len(entries) == 0 {
			_, _ = fmt.Fprint(sink.writer, ascii.DrawBox("Dispatch Quota\n\n(no stored quota state)", 0))
			return nil
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Provider", "Window Count", "Window Resets", "Last Dispatch", "Last Rate Limit", "Total"})
		for _, entry := range entries {
			lastDispatch := "-"
			if !entry.State.LastDispatchAt.IsZero() {
				lastDispatch = entry.State.LastDispatchAt.UTC().Format(time.RFC3339)
			}
			lastRateLimit := "-"
			if entry.State.LastRateLimitAt != nil {
				lastRateLimit = entry.State.LastRateLimitAt.UTC().Format(time.RFC3339)
			}
			t.AppendRow(table.Row{
				entry.Provider,
				entry.State.WindowCount,
				entry.State.WindowResetAt.UTC().Format(time.RFC3339),
				lastDispatch,
				lastRateLimit,
				entry.State.TotalDispatched,
			})
		}

		_, err = fmt.Fprintln(sink.writer, t.Render())
		return err
	},
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOut, "out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutDir, "out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all providers")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List providers with matching prefix")
}
