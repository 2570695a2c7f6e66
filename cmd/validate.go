package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Moxx-Company/validator-pro/internal/progress"
	"github.com/Moxx-Company/validator-pro/internal/server"
	"github.com/Moxx-Company/validator-pro/internal/service"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const maxLineBytes = 1 << 20

type validateOptions struct {
	kind    string
	file    string
	out     string
	verbose bool
}

// newValidateCmd creates the 'validate' subcommand, which runs one job
// in-process over a newline-separated file and prints a summary.
func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a file of email addresses or phone numbers",
		Long: `Reads one item per line from --file ("-" for stdin), removes duplicates,
validates the rest and prints a summary. Per-item verdicts are written as
newline-delimited JSON when --out is set.`,
		Example: "  validator validate --kind email --file list.txt --out verdicts.ndjson",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "email", "item kind: email or phone")
	cmd.Flags().StringVar(&opts.file, "file", "", "input file, one item per line (\"-\" for stdin)")
	cmd.Flags().StringVar(&opts.out, "out", "", "write verdicts as NDJSON to this path")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "log per-batch progress events")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runValidate(cmd *cobra.Command, opts *validateOptions) error {
	kind, err := validation.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	raw, err := readItemsFrom(opts.file, cmd.InOrStdin())
	if err != nil {
		return err
	}
	items, removed := validation.Dedupe(kind, raw)
	if len(items) == 0 {
		return errors.New("no items to validate")
	}

	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	cfg.Logging.Development = opts.verbose
	cfg.Progress.LogEnabled = opts.verbose
	if !opts.verbose {
		cfg.Logging.Level = "warn"
	}

	ctx := cmd.Context()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.Close(context.WithoutCancel(ctx))

	jobID, err := app.NewJobID()
	if err != nil {
		return err
	}
	updates, err := app.Service().Submit(ctx, jobID, kind, items)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	var final service.Update
	for u := range updates {
		if u.Final {
			final = u
			continue
		}
		printProgress(stderr, u.Snapshot)
	}
	if final.Err != nil {
		return fmt.Errorf("job %s failed: %w", jobID, final.Err)
	}
	if final.Summary == nil {
		return fmt.Errorf("job %s ended without a summary", jobID)
	}

	if opts.out != "" {
		verdicts, err := app.Service().Results(ctx, jobID)
		if err != nil {
			return err
		}
		if err := writeVerdicts(opts.out, verdicts); err != nil {
			return err
		}
	}
	printSummary(cmd.OutOrStdout(), jobID, kind, *final.Summary, removed)
	return nil
}

func readItemsFrom(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return readItems(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return readItems(f)
}

// readItems returns the non-blank lines of r.
func readItems(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var items []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return items, nil
}

func writeVerdicts(path string, verdicts []validation.Verdict) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, v := range verdicts {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode verdict: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func printProgress(w io.Writer, snap progress.Snapshot) {
	fmt.Fprintf(w, "%s %5.1f%%  %d/%d  ETA %s\n",
		snap.Bar(progress.DefaultBarWidth), snap.Percent(), snap.Processed, snap.Total, snap.ETAString())
}

func printSummary(w io.Writer, jobID string, kind validation.Kind, summary validation.Summary, removed int) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	bold.Fprintf(w, "%s validation complete (job %s)\n", kind, jobID)
	fmt.Fprintf(w, "  Total:     %d\n", summary.Total)
	green.Fprintf(w, "  Valid:     %d\n", summary.Valid)
	red.Fprintf(w, "  Invalid:   %d\n", summary.Invalid)
	rate := green
	if summary.SuccessRate < 50 {
		rate = red
	}
	rate.Fprintf(w, "  Success:   %.2f%%\n", summary.SuccessRate)
	fmt.Fprintf(w, "  Avg time:  %.3fs\n", summary.AvgValidationTime)
	if removed > 0 {
		color.New(color.FgYellow).Fprintf(w, "  Duplicates removed: %d\n", removed)
	}
}
