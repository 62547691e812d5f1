package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nao1215/bebop/internal/config"
	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/navigation"
	"github.com/nao1215/bebop/internal/pipeline"
	"github.com/nao1215/bebop/internal/report"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch pages and print them",
		Long: `Fetch requests one or more URLs and prints the resulting pages.

Links are numbered the same way the browser numbers them. With several
URLs the pages are fetched concurrently and printed in argument order;
a failed URL does not stop the others.

Examples:
  # Print a page
  bebop fetch gemini://geminiprotocol.net/

  # Input without a scheme means gemini://
  bebop fetch geminiprotocol.net/docs/

  # Answer a search prompt
  bebop fetch --input "gemini client" gemini://kennedy.gemi.dev/search

  # Output JSON, including resolved link URLs
  bebop fetch --json gemini://example.org/

  # Fetch several pages, eight at a time
  bebop fetch --batch 8 gemini://a.example/ gemini://b.example/ gopher://c.example/`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFetchCmd,
	}

	// Request flags
	cmd.Flags().StringP("input", "i", "",
		"Answer to send when the server asks for input")
	cmd.Flags().Bool("no-follow", false,
		"Do not follow redirects")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent fetches when several URLs are given")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().BoolP("raw", "r", false,
		"Output the plain page text without wrapping or styling")
	cmd.Flags().BoolP("urls", "u", false,
		"Show the URL of every link")
	cmd.Flags().IntP("width", "w", config.DefaultTextWidth,
		"Wrap width of text output (0 disables wrapping)")
	cmd.Flags().StringP("output", "o", "",
		"Write output to specified file path (creates directories if needed)")

	return cmd
}

// fetchOptions are the fetch flags that are not configuration.
type fetchOptions struct {
	input    string
	raw      bool
	showURLs bool
	output   string
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) (err error) {
	cfg, opts, err := buildFetchConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("failed to close trust store", "error", err)
		}
	}()

	out, closeOut, err := openOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write output file: %w", cerr))
		}
	}()

	renderer := newRenderer(cfg, opts, out)
	if len(args) == 1 {
		page, err := fetchPage(ctx, s.engine, args[0], opts.input)
		if err != nil {
			return err
		}
		return renderer.Render(page, navigation.Cursor{})
	}
	return fetchBatch(ctx, cmd, s, renderer, args)
}

// buildFetchConfig loads the configuration and applies the fetch flags.
func buildFetchConfig(cmd *cobra.Command) (*config.Config, fetchOptions, error) {
	var opts fetchOptions
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	if cfg.JSONOutput, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, opts, err
	}
	if cfg.MarkdownOutput, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, opts, err
	}

	noFollow, err := cmd.Flags().GetBool("no-follow")
	if err != nil {
		return nil, opts, err
	}
	if noFollow {
		cfg.AutoFollowRedirects = false
	}

	// Flags override the configuration file only when given.
	if cmd.Flags().Changed("batch") {
		if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
			return nil, opts, err
		}
	}
	if cmd.Flags().Changed("width") {
		if cfg.TextWidth, err = cmd.Flags().GetInt("width"); err != nil {
			return nil, opts, err
		}
	}

	if opts.input, err = cmd.Flags().GetString("input"); err != nil {
		return nil, opts, err
	}
	if opts.raw, err = cmd.Flags().GetBool("raw"); err != nil {
		return nil, opts, err
	}
	if opts.showURLs, err = cmd.Flags().GetBool("urls"); err != nil {
		return nil, opts, err
	}
	if opts.output, err = cmd.Flags().GetString("output"); err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

// fetchPage opens target, answering an input request with input when
// one is given.
func fetchPage(ctx context.Context, engine *navigation.Engine, target, input string) (*model.Page, error) {
	page, err := engine.Navigate(ctx, target, navigation.AsInput())
	var inputErr *navigation.InputRequiredError
	if errors.As(err, &inputErr) && input != "" {
		return engine.SubmitInput(ctx, inputErr, input)
	}
	return page, err
}

// fetchBatch fetches targets concurrently and renders them in argument
// order. Failures are reported on stderr.
func fetchBatch(ctx context.Context, cmd *cobra.Command, s *session, renderer report.Renderer, targets []string) error {
	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "Fetching %d URLs (concurrency: %d)...\n", len(targets), s.cfg.BatchSize)

	startTime := time.Now()
	batch := pipeline.NewBatchFetcher(s.engine,
		pipeline.WithConcurrency(s.cfg.BatchSize),
		pipeline.WithBatchLogger(s.logger),
	)
	results := batch.FetchAll(ctx, targets)

	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(errOut, "[%d/%d] %s: %v\n", i+1, len(results), r.Target, r.Err)
			if hint := errorHint(r.Err); hint != "" {
				fmt.Fprintln(errOut, hint)
			}
			continue
		}
		fmt.Fprintf(errOut, "[%d/%d] %s (%s)\n", i+1, len(results), r.Target, r.Elapsed.Round(time.Millisecond))
		if err := renderer.Render(r.Page, navigation.Cursor{}); err != nil {
			return err
		}
	}

	fmt.Fprintf(errOut, "Fetched %d URLs in %s\n", len(results), time.Since(startTime).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(results))
	}
	return nil
}

// newRenderer returns the renderer selected by the configuration and
// flags.
func newRenderer(cfg *config.Config, opts fetchOptions, out io.Writer) report.Renderer {
	switch {
	case cfg.JSONOutput:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownOutput:
		return report.NewMarkdownWriter(out)
	case opts.raw:
		return rawRenderer{output: out}
	default:
		return report.NewTextWriter(out,
			report.WithWidth(cfg.TextWidth),
			report.WithLinkURLs(opts.showURLs),
			report.WithColor(isTerminal(out)),
		)
	}
}

// rawRenderer prints the plain page text without wrapping or styling.
type rawRenderer struct {
	output io.Writer
}

// Render writes the text of page. The cursor is ignored.
func (r rawRenderer) Render(page *model.Page, _ navigation.Cursor) error {
	_, err := io.WriteString(r.output, page.Text())
	return err
}

// openOutput returns the writer for command output: the file at path, or
// the command's stdout when path is empty. The returned function closes
// the file and reports write errors that surface on close.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Pages may contain answers to input prompts, so only the owner may read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // File descriptors fit in an int
}
