package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/session"
	"github.com/lumipallolabs/dirsize/internal/snapshot"
	"github.com/lumipallolabs/dirsize/internal/ui"
)

type scanCmd struct {
	scan     scanFlags
	out      outputFlags
	snapshot string
	save     bool
	quiet    bool
	verbose  bool
	flat     bool
}

func (c *CLI) scanCommand() *cobra.Command {
	var f scanCmd
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory tree and rank its largest directories",
		Long: heredoc.Doc(`
			Scan walks path (the current directory by default) and lists its
			largest subdirectories. Directories that dominate their parent are
			expanded to show their own largest children unless --flat is given.

			With --snapshot the full result is written to a parquet file; with
			--save it is added to the snapshot directory for later view and
			diff commands.
		`),
		Example: heredoc.Doc(`
			dirsize scan ~/src --top 20
			dirsize scan / --basis logical --max-depth 3 --json
			dirsize scan /data --save --progress-bytes 64MB
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return c.runScan(cmd.Context(), path, f)
		},
	}
	fs := cmd.Flags()
	f.scan.register(fs)
	f.out.register(fs)
	fs.StringVar(&f.snapshot, "snapshot", "", "Write the result to this parquet file")
	fs.BoolVar(&f.save, "save", false, "Save the result in the snapshot directory")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Print no progress")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Print progress lines when not on a terminal")
	fs.BoolVar(&f.flat, "flat", false, "List one level without expanding dominant directories")
	sortFlags(fs)
	return cmd
}

func (c *CLI) runScan(ctx context.Context, path string, f scanCmd) error {
	key, err := f.out.key()
	if err != nil {
		return invalid(err)
	}
	if err := f.out.validate(); err != nil {
		return invalid(err)
	}

	sum, err := c.scan(ctx, path, &f.scan, f.out.json || f.quiet, f.verbose)
	if err != nil && sum == nil {
		return c.scanError(err)
	}

	if f.snapshot != "" {
		if werr := snapshot.WriteFile(f.snapshot, sum); werr != nil {
			return failure(fmt.Errorf("writing snapshot: %w", werr))
		}
	}
	if f.save {
		saved, werr := c.store().Save(sum)
		if werr != nil {
			return failure(fmt.Errorf("saving snapshot: %w", werr))
		}
		if !f.out.json && !f.quiet {
			fmt.Fprintln(c.stderr, ui.MutedStyle.Render("saved "+saved))
		}
	}

	if f.out.json {
		report, rerr := ui.NewJSONReport(sum, "", key, f.out.top)
		if rerr != nil {
			return failure(rerr)
		}
		if werr := ui.WriteJSON(c.stdout, report); werr != nil {
			return failure(werr)
		}
	} else {
		opts := ui.ReportOptions{Key: key, Top: f.out.top, MaxErrors: f.out.errors}
		if !f.flat {
			opts.Preview = ui.DefaultPreview()
		}
		if werr := ui.WriteReport(c.stdout, sum, opts); werr != nil {
			return failure(werr)
		}
	}
	return c.scanResult(sum, err)
}

// scan runs one session on path, showing progress on stderr.
func (c *CLI) scan(ctx context.Context, path string, f *scanFlags, silent, verbose bool) (*session.Summary, error) {
	opts, err := f.options()
	if err != nil {
		return nil, invalid(err)
	}

	live := !silent && c.interactive()
	if !silent && !live && verbose {
		opts.Notifier = func(p model.ProgressSnapshot) {
			fmt.Fprintf(c.stderr, "scanned %s entries, %s (%s/s)\n",
				humanize.Comma(p.ProcessedEntries), ui.FormatSize(p.ProcessedBytes), ui.FormatSize(int64(p.Throughput)))
		}
	}

	s, err := session.New(path, opts)
	if err != nil {
		return nil, err
	}
	if live {
		return ui.RunProgress(ctx, s, c.stderr)
	}
	return s.Run(ctx)
}

func (c *CLI) scanError(err error) error {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit
	}
	return &exitError{code: session.ExitCode(nil, err), err: err}
}

// scanResult maps a finished session to the command's exit status.
func (c *CLI) scanResult(sum *session.Summary, err error) error {
	code := session.ExitCode(sum, err)
	if code == session.ExitOK {
		return nil
	}
	return &exitError{code: code, err: err}
}

type drillCmd struct {
	scan scanFlags
	out  outputFlags
}

func (c *CLI) drillCommand() *cobra.Command {
	var f drillCmd
	cmd := &cobra.Command{
		Use:   "drill <root> <subdir>",
		Short: "Scan one subdirectory and rank its immediate children",
		Long: heredoc.Doc(`
			Drill scans subdir (relative to root unless absolute) and lists its
			immediate subdirectories ranked by the sort key.
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[1]
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(args[0], dir)
			}
			return c.runDrill(cmd.Context(), dir, f)
		},
	}
	fs := cmd.Flags()
	f.scan.register(fs)
	f.out.register(fs)
	sortFlags(fs)
	return cmd
}

func (c *CLI) runDrill(ctx context.Context, dir string, f drillCmd) error {
	key, err := f.out.key()
	if err != nil {
		return invalid(err)
	}
	if err := f.out.validate(); err != nil {
		return invalid(err)
	}

	sum, err := c.scan(ctx, dir, &f.scan, f.out.json, false)
	if err != nil && sum == nil {
		return c.scanError(err)
	}

	if f.out.json {
		report, rerr := ui.NewJSONReport(sum, "", key, f.out.top)
		if rerr != nil {
			return failure(rerr)
		}
		if werr := ui.WriteJSON(c.stdout, report); werr != nil {
			return failure(werr)
		}
	} else if werr := ui.WriteReport(c.stdout, sum, ui.ReportOptions{Key: key, Top: f.out.top, MaxErrors: f.out.errors}); werr != nil {
		return failure(werr)
	}
	return c.scanResult(sum, err)
}
