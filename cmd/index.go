package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
	"github.com/itsmostafa/resilindex/internal/engine"
	"github.com/itsmostafa/resilindex/internal/pageindex"
	"github.com/itsmostafa/resilindex/internal/retry"
)

var noProgress bool

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Build the hierarchical index of a PDF or markdown file",
	Long: `Build the hierarchical index of a PDF or markdown file and write it to
<output_dir>/<name>_structure.json.

PDF runs are checkpointed under work_dir after every page group. Running the
same command again after a failure or interruption resumes from the last
saved step.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			return indexPDF(cmd.Context(), cmd.OutOrStdout(), path)
		case ".md", ".markdown":
			return indexMarkdown(cmd.Context(), cmd.OutOrStdout(), path)
		default:
			return fmt.Errorf("unsupported file type %q (expected .pdf, .md or .markdown)", filepath.Ext(path))
		}
	},
}

func init() {
	flags := indexCmd.Flags()
	flags.String("model", "", "LLM model name")
	flags.Int("toc-check-pages", 0, "Pages scanned for a table of contents")
	flags.Int("max-pages-per-node", 0, "Pages per extraction group")
	flags.Int("max-tokens-per-node", 0, "Token budget per page group prompt")
	flags.String("if-add-node-id", "", "Add node ids (yes/no)")
	flags.String("if-add-node-summary", "", "Add node summaries (yes/no)")
	flags.String("if-add-doc-description", "", "Add a document description (yes/no)")
	flags.String("if-add-node-text", "", "Keep node text in the output (yes/no)")
	flags.String("output-dir", "", "Directory for structure files (default ./results)")
	flags.Int("min-node-tokens", 0, "Markdown only: fold sections smaller than this into their parent")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	rootCmd.AddCommand(indexCmd)
}

func newRetryWrapper() *retry.Wrapper {
	return retry.New(settings.RetryPolicy(), retry.WithLogger(logger))
}

func indexPDF(ctx context.Context, w io.Writer, path string) error {
	start := time.Now()

	llm, err := pageindex.NewOpenAIProvider(settings.OpenAIProviderConfig())
	if err != nil {
		return err
	}
	indexer := pageindex.NewIndexer(llm, pageindex.NewPDFReader(), logger)

	store := checkpoint.NewStore(settings.WorkDir)
	doc := engine.Document{Path: path, Name: filepath.Base(path)}
	id := engine.DocumentID(doc)

	unlock, err := store.Lock(id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrLocked) {
			return fmt.Errorf("%s is already being indexed by another process", id)
		}
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("failed to release checkpoint lock", "document", id, "error", err)
		}
	}()

	opts := engine.Options{
		Store:  store,
		Retry:  newRetryWrapper(),
		Pacer:  settings.Pacer(),
		Logger: logger,
	}
	var bar *groupProgress
	if !noProgress && interactive(os.Stderr) {
		bar = newGroupProgress(os.Stderr)
		opts.Progress = bar.Update
	}

	eng, err := engine.New(indexer.Collaborators(), opts)
	if err != nil {
		return err
	}

	formatHeader(w, runHeader{Document: path, Kind: "pdf", Model: llm.Model(), WorkDir: store.Dir()})

	result, err := eng.Run(ctx, doc, settings.RunConfig())
	if bar != nil {
		bar.Close()
	}
	if err != nil {
		formatFailure(w, id, err, engine.IsResumable(err))
		return err
	}

	var s pageindex.Structure
	if err := json.Unmarshal(result.Structure, &s); err != nil {
		return fmt.Errorf("decoding structure: %w", err)
	}
	out, err := writeStructure(&s)
	if err != nil {
		return err
	}

	formatSummary(w, runSummary{
		Output:   out,
		Nodes:    len(pageindex.FlattenTree(s.Structure)),
		Pages:    result.State.TotalPages,
		Groups:   result.State.TotalGroups,
		Resumed:  result.Resumed,
		Duration: time.Since(start),
	})
	return nil
}

func indexMarkdown(ctx context.Context, w io.Writer, path string) error {
	start := time.Now()
	cfg := settings.RunConfig()

	// Markdown needs the LLM only for summaries and descriptions.
	var llm pageindex.LLMProvider
	model := "none"
	if cfg.IfAddNodeSummary || cfg.IfAddDocDescription {
		p, err := pageindex.NewOpenAIProvider(settings.OpenAIProviderConfig())
		if err != nil {
			return err
		}
		llm, model = p, p.Model()
	}

	formatHeader(w, runHeader{Document: path, Kind: "markdown", Model: model, WorkDir: "-"})

	stop := func() {}
	if !noProgress && interactive(os.Stderr) {
		stop = startSpinner(os.Stderr, "Indexing "+filepath.Base(path))
	}
	s, err := retry.Do(ctx, newRetryWrapper(), "markdown_to_tree", func(ctx context.Context) (*pageindex.Structure, error) {
		return pageindex.MarkdownToTree(ctx, path, cfg, settings.MarkdownOptions(), llm)
	})
	stop()
	if err != nil {
		formatFailure(w, filepath.Base(path), err, false)
		return err
	}

	out, err := writeStructure(s)
	if err != nil {
		return err
	}
	formatSummary(w, runSummary{
		Output:   out,
		Nodes:    len(pageindex.FlattenTree(s.Structure)),
		Duration: time.Since(start),
	})
	return nil
}

// writeStructure writes s as indented JSON to <output_dir>/<name>_structure.json.
func writeStructure(s *pageindex.Structure) (string, error) {
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding structure: %w", err)
	}
	out := filepath.Join(settings.OutputDir, s.Name+"_structure.json")
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing structure: %w", err)
	}
	logger.Info("wrote structure", "path", out)
	return out, nil
}
