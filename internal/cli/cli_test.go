package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumipallolabs/dirsize/internal/session"
	"github.com/lumipallolabs/dirsize/internal/ui"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

// tree builds root/A/{f1:100, f2:200, B/{f3:50}} plus root/C/{f4:1000}.
func tree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "f1"), 100)
	writeFile(t, filepath.Join(root, "A", "f2"), 200)
	writeFile(t, filepath.Join(root, "A", "B", "f3"), 50)
	writeFile(t, filepath.Join(root, "C", "f4"), 1000)
	return root
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := New("test")
	c.SetOutput(&stdout, &stderr)
	args = append(args, "--snapshot-dir", filepath.Join(t.TempDir(), "snapshots"))
	code := c.Execute(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func runIn(t *testing.T, dir string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := New("test")
	c.SetOutput(&stdout, &stderr)
	code := c.Execute(context.Background(), append(args, "--snapshot-dir", dir))
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decode(t *testing.T, out string) ui.JSONReport {
	t.Helper()
	var r ui.JSONReport
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestScanJSON(t *testing.T) {
	root := tree(t)
	res := run(t, "scan", root, "--basis", "logical", "--json")
	require.Equal(t, session.ExitOK, res.code, res.stderr)

	r := decode(t, res.stdout)
	assert.Equal(t, session.Completed, r.Status)
	assert.EqualValues(t, 1350, r.Totals.Bytes)
	assert.EqualValues(t, 4, r.Totals.Files)
	require.Len(t, r.Entries, 2)
	assert.Equal(t, filepath.Join(r.Root, "C"), r.Entries[0].Path)
	assert.Equal(t, "logical", r.Basis)
	assert.Zero(t, r.ErrorCount)
}

func TestScanTable(t *testing.T) {
	root := tree(t)
	res := run(t, "scan", root, "--basis", "logical", "--sort", "files", "--strategy", "legacy")
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "legacy")
	assert.Contains(t, res.stdout, filepath.Join(root, "A")+string(filepath.Separator))
	assert.Contains(t, res.stdout, "1.3 KiB")
}

func TestScanInvalidInput(t *testing.T) {
	root := tree(t)
	for name, args := range map[string][]string{
		"missing path":   {"scan", filepath.Join(root, "nope")},
		"file path":      {"scan", filepath.Join(root, "C", "f4")},
		"bad basis":      {"scan", root, "--basis", "weird"},
		"bad hardlinks":  {"scan", root, "--hardlinks", "sometimes"},
		"bad strategy":   {"scan", root, "--strategy", "turbo"},
		"bad sort":       {"scan", root, "--sort", "name"},
		"bad bytes":      {"scan", root, "--progress-bytes", "lots"},
		"negative top":   {"scan", root, "--top", "-1"},
		"negative depth": {"scan", root, "--max-depth", "-2"},
		"unknown flag":   {"scan", root, "--frobnicate"},
		"too many args":  {"scan", root, root},
		"drill args":     {"drill", root},
		"unknown cmd":    {"explode"},
	} {
		t.Run(name, func(t *testing.T) {
			res := run(t, args...)
			assert.Equal(t, session.ExitInvalid, res.code, res.stderr)
			assert.Contains(t, res.stderr, "Error:")
		})
	}
}

func TestScanPartial(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permissions are not enforced")
	}
	root := tree(t)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "secret"), 10)
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	res := run(t, "scan", root, "--basis", "logical", "--json")
	assert.Equal(t, session.ExitPartial, res.code)
	r := decode(t, res.stdout)
	assert.EqualValues(t, 1350, r.Totals.Bytes)
	assert.GreaterOrEqual(t, r.ErrorCount, 1)
}

func TestDrill(t *testing.T) {
	root := tree(t)
	res := run(t, "drill", root, "A", "--basis", "logical", "--json")
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	r := decode(t, res.stdout)
	assert.Equal(t, filepath.Join(root, "A"), r.Root)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, filepath.Join(root, "A", "B"), r.Entries[0].Path)
	assert.EqualValues(t, 350, r.Totals.Bytes)
}

func TestSnapshotViewAndDiff(t *testing.T) {
	root := tree(t)
	dir := t.TempDir()
	before := filepath.Join(dir, "before.parquet")
	after := filepath.Join(dir, "after.parquet")

	res := run(t, "scan", root, "--basis", "logical", "--snapshot", before, "--quiet")
	require.Equal(t, session.ExitOK, res.code, res.stderr)

	writeFile(t, filepath.Join(root, "A", "B", "grown"), 4096)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "C")))
	res = run(t, "scan", root, "--basis", "logical", "--snapshot", after, "--quiet")
	require.Equal(t, session.ExitOK, res.code, res.stderr)

	res = run(t, "view", before, "--path", "A", "--json")
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	r := decode(t, res.stdout)
	assert.Equal(t, filepath.Join(root, "A"), r.Path)
	require.Len(t, r.Entries, 1)
	assert.EqualValues(t, 50, r.Entries[0].SizeBytes)

	res = run(t, "view", "--from-snapshot", after)
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, filepath.Join(root, "A"))

	res = run(t, "view", before, "--path", "nowhere")
	assert.Equal(t, session.ExitInvalid, res.code)

	res = run(t, "diff", before, after, "--json")
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	var d diffReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &d))
	assert.EqualValues(t, 4096-1000, d.Delta)
	require.NotEmpty(t, d.Changes)
	assert.Equal(t, filepath.Join(root, "A"), d.Changes[0].Path)
	var deleted bool
	for _, c := range d.Changes {
		if c.Path == filepath.Join(root, "C") {
			deleted = c.Deleted
		}
	}
	assert.True(t, deleted)

	res = run(t, "diff", before, after)
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "deleted")
}

func TestSaveAndViewRoot(t *testing.T) {
	root := tree(t)
	store := t.TempDir()

	res := runIn(t, store, "scan", root, "--basis", "logical", "--save", "--quiet")
	require.Equal(t, session.ExitOK, res.code, res.stderr)

	res = runIn(t, store, "view", "--root", root, "--json", "--top", "1")
	require.Equal(t, session.ExitOK, res.code, res.stderr)
	r := decode(t, res.stdout)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, filepath.Join(root, "C"), r.Entries[0].Path)

	res = runIn(t, store, "diff", "--root", root)
	assert.Equal(t, session.ExitFailure, res.code, "one snapshot is not enough to diff")

	res = runIn(t, t.TempDir(), "view", "--root", root)
	assert.Equal(t, session.ExitFailure, res.code)
}

func TestViewErrors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.parquet")
	require.NoError(t, os.WriteFile(corrupt, []byte("PAR1 but not really"), 0o644))

	res := run(t, "view", corrupt)
	assert.Equal(t, session.ExitFailure, res.code)
	assert.Contains(t, res.stderr, "snapshot corrupt")

	res = run(t, "view")
	assert.Equal(t, session.ExitInvalid, res.code)

	res = run(t, "view", corrupt, "--root", dir)
	assert.Equal(t, session.ExitInvalid, res.code)

	res = run(t, "diff", corrupt)
	assert.Equal(t, session.ExitInvalid, res.code)
}
