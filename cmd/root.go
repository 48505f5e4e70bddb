package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/resilindex/internal/config"
	"github.com/itsmostafa/resilindex/internal/logging"
	"github.com/itsmostafa/resilindex/internal/version"
)

var cfgFile string

// Resolved in PersistentPreRunE for every subcommand.
var (
	settings *config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

// flagKeys maps command-line flags to config keys. Only flags a command
// defines are bound.
var flagKeys = map[string]string{
	"work-dir":            "work_dir",
	"output-dir":          "output_dir",
	"model":               "index.model",
	"toc-check-pages":     "index.toc_check_pages",
	"max-pages-per-node":  "index.max_pages_per_node",
	"max-tokens-per-node": "index.max_tokens_per_node",
	"min-node-tokens":     "markdown.min_node_tokens",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"log-file":            "log.file",
}

// yesNoKeys maps the yes/no flags to boolean config keys.
var yesNoKeys = map[string]string{
	"if-add-node-id":         "index.if_add_node_id",
	"if-add-node-summary":    "index.if_add_node_summary",
	"if-add-doc-description": "index.if_add_doc_description",
	"if-add-node-text":       "index.if_add_node_text",
}

var rootCmd = &cobra.Command{
	Use:   "resilindex",
	Short: "Resumable hierarchical indexing of long documents",
	Long: `resilindex builds a PageIndex-style table-of-contents tree for long PDF and
markdown documents with an LLM. PDF runs are checkpointed after every page
group, so an interrupted or failed run picks up where it stopped.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("resilindex %s\n", version.String()))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default ./config.yaml or $HOME/.resilindex/config.yaml)")
	flags.String("work-dir", "", "Directory holding checkpoints (default ./tmp)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default info)")
	flags.String("log-format", "", "Log format: text or json (default text)")
	flags.String("log-file", "", "Also append logs to this file")
}

// setup resolves configuration and the logger for the command being run.
func setup(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return err
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := mgr.BindFlag(key, f); err != nil {
				return err
			}
		}
	}
	for name, key := range yesNoKeys {
		if !cmd.Flags().Changed(name) {
			continue
		}
		value, err := cmd.Flags().GetString(name)
		if err != nil {
			return err
		}
		on, err := config.ParseYesNo(value)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		mgr.Set(key, on)
	}

	settings, err = mgr.Load()
	if err != nil {
		return err
	}

	logger, closeLog, err = logging.New(settings.LoggingOptions())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if file := mgr.ConfigFile(); file != "" {
		logger.Debug("loaded config file", "path", file)
	}
	return nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// command; a cancelled index run can be resumed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		stop()
		os.Exit(1)
	}
}
