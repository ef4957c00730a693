package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brdforge/brdforge/internal/ailink"
	"github.com/brdforge/brdforge/internal/config"
	"github.com/brdforge/brdforge/internal/observability"
	"github.com/brdforge/brdforge/internal/output"
)

const maxLogicFileChars = 4000

var generateCmd = &cobra.Command{
	Use:   "generate <title>",
	Short: "Generate BRD sections",
	Long: `Generate Business Requirements Document sections from a business use
case. Sections are produced one at a time through the provider's dispatch
scheduler, so a long section list is paced against the provider quota.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("use-case", "u", "", "Business use case driving the document (required)")
	generateCmd.Flags().StringP("logic", "l", "", "Inline business logic description")
	generateCmd.Flags().String("logic-file", "", fmt.Sprintf("Read business logic from file (truncated to %d chars)", maxLogicFileChars))
	generateCmd.Flags().StringSliceP("section", "s", nil, "Section to generate (repeatable; defaults to the configured section list)")
	generateCmd.Flags().String("model", "", "Model override")
	generateCmd.Flags().String("prompt", "", "Prompt slug override")
	generateCmd.Flags().Int("timeout-sec", 0, "Per-section timeout in seconds")
	generateCmd.Flags().String("output-format", string(output.FormatMarkdown), "Output format: markdown|json|table")
	generateCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	generateCmd.Flags().String("out-dir", "", "Write output to a directory")

	_ = generateCmd.MarkFlagRequired("use-case")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(args[0])
	if title == "" {
		return errors.New("document title is required")
	}

	useCase, _ := cmd.Flags().GetString("use-case")
	logic, _ := cmd.Flags().GetString("logic")
	logicFile, _ := cmd.Flags().GetString("logic-file")
	sections, _ := cmd.Flags().GetStringSlice("section")
	modelOverride, _ := cmd.Flags().GetString("model")
	promptSlug, _ := cmd.Flags().GetString("prompt")
	timeoutSec, _ := cmd.Flags().GetInt("timeout-sec")

	if strings.TrimSpace(useCase) == "" {
		return errors.New("--use-case is required")
	}
	if logic == "" && logicFile != "" {
		content, err := readTruncatedFile(logicFile, maxLogicFileChars)
		if err != nil {
			return fmt.Errorf("reading logic file: %w", err)
		}
		logic = content
	}

	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(sections) == 0 {
		sections = cfg.Brd.Sections
	}
	if promptSlug == "" {
		promptSlug = cfg.Brd.DefaultPrompt
	}

	// Quota persistence is best effort for the CLI; generation proceeds
	// without it when the store cannot be opened.
	db, err := openStore(ctx)
	if err != nil {
		observability.CLILogger.Warn("Store unavailable, quota state will not persist", zap.Error(err))
		db = nil
	} else {
		defer db.Close() // nolint:errcheck // best-effort cleanup
	}

	service, _, err := buildAILinkService(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("building generation service: %w", err)
	}

	result, err := service.GenerateDocument(ctx, ailink.DocumentRequest{
		Title:      title,
		UseCase:    useCase,
		Logic:      logic,
		Sections:   sections,
		Role:       cfg.Brd.Role,
		PromptSlug: promptSlug,
		Model:      modelOverride,
		TimeoutSec: timeoutSec,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	if outDir != "" {
		outDir, err = ensureOutDir(outDir)
		if err != nil {
			return err
		}
		name := sanitizeFilename(title)
		outPath = filepath.Join(outDir, fmt.Sprintf("%s.%s", name, outputExtension(format)))
	}

	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rendered, err := output.NewFormatter(format).FormatDocument(result)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		return err
	}

	if len(result.Sections) == 0 && len(result.Errors) > 0 {
		first := result.Errors[0]
		return fmt.Errorf("all sections failed: %s (%s)", first.Message, first.Code)
	}
	return nil
}

func readTruncatedFile(path string, maxLen int) (result string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if maxLen <= 0 {
		return "", nil
	}

	reader := bufio.NewReader(f)
	var builder strings.Builder
	builder.Grow(maxLen + 3)

	count := 0
	for count < maxLen+1 {
		r, _, readErr := reader.ReadRune()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", readErr
		}
		if count < maxLen {
			builder.WriteRune(r)
		}
		count++
	}

	content := builder.String()
	if count > maxLen {
		content += "..."
	}
	return content, nil
}
