// Package cli wires the dirsize commands: scan, drill, view and diff.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lumipallolabs/dirsize/internal/logging"
	"github.com/lumipallolabs/dirsize/internal/session"
	"github.com/lumipallolabs/dirsize/internal/snapshot"
)

// exitError carries a process exit code. A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func invalid(err error) error { return &exitError{code: session.ExitInvalid, err: err} }
func failure(err error) error { return &exitError{code: session.ExitFailure, err: err} }

// CLI represents the command-line interface.
type CLI struct {
	version     string
	stdout      io.Writer
	stderr      io.Writer
	interactive func() bool
	snapshotDir string
}

// New creates a new CLI instance with the given version.
func New(version string) *CLI {
	return &CLI{
		version: version,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		interactive: func() bool {
			fd := os.Stderr.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
	}
}

// SetOutput redirects command output and disables the live progress view.
func (c *CLI) SetOutput(stdout, stderr io.Writer) {
	c.stdout, c.stderr = stdout, stderr
	c.interactive = func() bool { return false }
}

// Execute runs the command line args and returns the process exit code.
func (c *CLI) Execute(ctx context.Context, args []string) int {
	root := c.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return session.ExitOK
	}

	var exit *exitError
	if !errors.As(err, &exit) {
		// Usage errors from cobra itself.
		exit = &exitError{code: session.ExitInvalid, err: err}
	}
	if exit.err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", exit.err)
		logging.Logger().Debug("command failed", "args", args, "code", exit.code, "error", exit.err)
	}
	return exit.code
}

func (c *CLI) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dirsize",
		Short: "Measure directory sizes fast",
		Long: heredoc.Doc(`
			dirsize walks a directory tree in parallel and reports the inclusive
			size, file count and subdirectory count of every directory.

			The traversal backend is chosen from the filesystem of the scanned
			path: a getdents/openat walker on unix filesystems, a directory-handle
			walker on NTFS and ReFS, and a portable parallel walker elsewhere.
			Results can be saved as parquet snapshots and viewed or compared
			later without rescanning.

			Exit codes:
			  0  success
			  2  invalid input
			  3  partial results (aborted scan or skipped entries)
			  4  failure
		`),
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalid(err)
	})
	root.PersistentFlags().StringVar(&c.snapshotDir, "snapshot-dir", snapshot.DefaultDir(), "Directory of saved snapshots")

	root.AddCommand(
		c.scanCommand(),
		c.drillCommand(),
		c.viewCommand(),
		c.diffCommand(),
	)
	return root
}

func (c *CLI) store() *snapshot.Store {
	return snapshot.NewStore(c.snapshotDir)
}

// sortFlags sorts flags in declaration order, like the rest of the help text.
func sortFlags(fs *pflag.FlagSet) {
	fs.SortFlags = false
}
