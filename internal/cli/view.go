package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/dirsize/internal/snapshot"
	"github.com/lumipallolabs/dirsize/internal/ui"
)

type viewCmd struct {
	out  outputFlags
	from string
	root string
	path string
	flat bool
}

func (c *CLI) viewCommand() *cobra.Command {
	var f viewCmd
	cmd := &cobra.Command{
		Use:   "view [snapshot]",
		Short: "Show a saved snapshot without rescanning",
		Long: heredoc.Doc(`
			View reads a snapshot written by scan --snapshot or scan --save and
			lists its largest directories. Give the file as an argument or with
			--from-snapshot, or pick the newest saved snapshot of a directory
			with --root. --path re-ranks the children of any scanned directory.
		`),
		Example: heredoc.Doc(`
			dirsize view scan.parquet --path src --sort files
			dirsize view --root ~/src --top 5 --json
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if f.from != "" {
					return invalid(errors.New("snapshot given both as argument and --from-snapshot"))
				}
				f.from = args[0]
			}
			return c.runView(f)
		},
	}
	fs := cmd.Flags()
	f.out.register(fs)
	fs.StringVar(&f.from, "from-snapshot", "", "Snapshot file to read")
	fs.StringVar(&f.root, "root", "", "Read the newest saved snapshot of this directory")
	fs.StringVarP(&f.path, "path", "p", "", "Directory within the snapshot to list (relative to its root)")
	fs.BoolVar(&f.flat, "flat", false, "List one level without expanding dominant directories")
	sortFlags(fs)
	return cmd
}

func (c *CLI) runView(f viewCmd) error {
	key, err := f.out.key()
	if err != nil {
		return invalid(err)
	}
	if err := f.out.validate(); err != nil {
		return invalid(err)
	}

	path, err := c.resolveSnapshot(f.from, f.root)
	if err != nil {
		return err
	}
	sum, err := snapshot.Read(path)
	if err != nil {
		return failure(err)
	}

	if f.out.json {
		report, rerr := ui.NewJSONReport(sum, f.path, key, f.out.top)
		if rerr != nil {
			return invalid(rerr)
		}
		if werr := ui.WriteJSON(c.stdout, report); werr != nil {
			return failure(werr)
		}
		return nil
	}

	opts := ui.ReportOptions{Path: f.path, Key: key, Top: f.out.top, MaxErrors: f.out.errors}
	if !f.flat {
		opts.Preview = ui.DefaultPreview()
	}
	if werr := ui.WriteReport(c.stdout, sum, opts); werr != nil {
		if errors.Is(werr, ui.ErrPathNotFound) {
			return invalid(werr)
		}
		return failure(werr)
	}
	return nil
}

func (c *CLI) resolveSnapshot(file, root string) (string, error) {
	switch {
	case file != "" && root != "":
		return "", invalid(errors.New("--from-snapshot and --root are mutually exclusive"))
	case file != "":
		return file, nil
	case root != "":
		abs, err := filepath.Abs(root)
		if err != nil {
			return "", invalid(err)
		}
		path, err := c.store().Latest(abs)
		if err != nil {
			return "", failure(err)
		}
		return path, nil
	default:
		return "", invalid(errors.New("missing snapshot: give a file, --from-snapshot or --root"))
	}
}

type diffCmd struct {
	root string
	top  int
	json bool
}

func (c *CLI) diffCommand() *cobra.Command {
	var f diffCmd
	cmd := &cobra.Command{
		Use:   "diff [old new]",
		Short: "Compare two snapshots of the same directory",
		Long: heredoc.Doc(`
			Diff lists the directories whose size changed between two snapshots,
			largest change first. Give two snapshot files, or use --root to
			compare the two newest saved snapshots of a directory.
		`),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDiff(args, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.root, "root", "", "Compare the two newest saved snapshots of this directory")
	fs.IntVarP(&f.top, "top", "t", 20, "Number of changes to list (0=all)")
	fs.BoolVar(&f.json, "json", false, "Print JSON instead of a table")
	sortFlags(fs)
	return cmd
}

type diffReport struct {
	Root    string            `json:"root"`
	Before  string            `json:"before"`
	After   string            `json:"after"`
	Delta   int64             `json:"delta_bytes"`
	Changes []snapshot.Change `json:"changes"`
}

func (c *CLI) runDiff(args []string, f diffCmd) error {
	if f.top < 0 {
		return invalid(errors.New("top cannot be negative"))
	}
	var older, newer string
	switch {
	case len(args) == 2 && f.root != "":
		return invalid(errors.New("give either two snapshots or --root"))
	case len(args) == 2:
		older, newer = args[0], args[1]
	case f.root != "":
		abs, err := filepath.Abs(f.root)
		if err != nil {
			return invalid(err)
		}
		if older, err = c.store().Previous(abs); err != nil {
			return failure(err)
		}
		if newer, err = c.store().Latest(abs); err != nil {
			return failure(err)
		}
	default:
		return invalid(errors.New("missing snapshots: give two files or --root"))
	}

	before, err := snapshot.ReadMeta(older)
	if err != nil {
		return failure(err)
	}
	after, err := snapshot.ReadMeta(newer)
	if err != nil {
		return failure(err)
	}
	prev, err := snapshot.ReadEntries(older, nil)
	if err != nil {
		return failure(err)
	}
	cur, err := snapshot.ReadEntries(newer, nil)
	if err != nil {
		return failure(err)
	}
	changes := snapshot.Diff(prev, cur)

	if f.json {
		shown := changes
		if f.top > 0 && len(shown) > f.top {
			shown = shown[:f.top]
		}
		if shown == nil {
			shown = []snapshot.Change{}
		}
		return wrapFailure(ui.WriteJSON(c.stdout, diffReport{
			Root:    after.Root,
			Before:  older,
			After:   newer,
			Delta:   after.Totals.Bytes - before.Totals.Bytes,
			Changes: shown,
		}))
	}
	return wrapFailure(ui.WriteDiff(c.stdout, before, after, changes, ui.DiffOptions{Top: f.top}))
}

func wrapFailure(err error) error {
	if err == nil {
		return nil
	}
	return failure(err)
}
