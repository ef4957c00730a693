package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brdforge/brdforge/internal/ailink"
	"github.com/brdforge/brdforge/internal/config"
)

var ailinkCmd = &cobra.Command{
	Use:   "ailink",
	Short: "Inspect prompts and provider routing",
}

var ailinkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}

		registry, err := buildPromptRegistry(cfg)
		if err != nil {
			return err
		}

		prompts := registry.List()
		if len(prompts) == 0 {
			fmt.Println("No prompts found.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(writer, "SLUG\tVERSION\tDESCRIPTION") // nolint:errcheck // tabwriter buffers; errors surface at Flush
		for _, prompt := range prompts {
			if prompt == nil {
				continue
			}
			_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\n", prompt.Config.Slug, prompt.Config.Version, prompt.Config.Description) // nolint:errcheck // tabwriter buffers
		}
		return writer.Flush()
	},
}

var ailinkProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured provider instances and their dispatch limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}

		providers := ailink.NewRegistry(cfg.AILink)

		ids := make([]string, 0, len(cfg.AILink.Providers))
		for id := range cfg.AILink.Providers {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(writer, "PROVIDER\tENABLED\tDRIVER\tQUOTA\tMIN INTERVAL\tMAX RETRIES") // nolint:errcheck // tabwriter buffers
		for _, id := range ids {
			providerCfg := cfg.AILink.Providers[id]
			if !providerCfg.Enabled {
				_, _ = fmt.Fprintf(writer, "%s\tno\t%s\t-\t-\t-\n", id, providerCfg.AIProvider) // nolint:errcheck // tabwriter buffers
				continue
			}

			scheduler, err := providers.SchedulerFor(id)
			if err != nil {
				return err
			}
			dcfg := scheduler.Config()
			_, _ = fmt.Fprintf(writer, "%s\tyes\t%s\t%d per %s\t%s\t%d\n", // nolint:errcheck // tabwriter buffers
				id, providerCfg.AIProvider, dcfg.QuotaLimit, dcfg.QuotaWindow, dcfg.MinInterval, dcfg.MaxRetries)
		}
		return writer.Flush()
	},
}

func init() {
	rootCmd.AddCommand(ailinkCmd)
	ailinkCmd.AddCommand(ailinkListCmd)
	ailinkCmd.AddCommand(ailinkProvidersCmd)
}
