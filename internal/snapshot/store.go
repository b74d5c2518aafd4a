package snapshot

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lumipallolabs/dirsize/internal/session"
)

const (
	ext        = ".parquet"
	timeLayout = "2006-01-02_150405.000"
)

// ErrNoSnapshot is returned when a store holds no snapshot for a root.
var ErrNoSnapshot = errors.New("no snapshot found")

// Store keeps timestamped snapshots in a directory, grouped by scan root.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns the default snapshot directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dirsize"
	}
	return filepath.Join(home, ".dirsize", "snapshots")
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// key returns the filename prefix for root: a readable slug of its last
// element followed by a hash of the whole path.
func key(root string) string {
	h := fnv.New32a()
	h.Write([]byte(filepath.Clean(root)))

	base := filepath.Base(root)
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, base)
	slug = strings.Trim(slug, "-.")
	if slug == "" {
		slug = "root"
	}
	return fmt.Sprintf("%s-%08x", slug, h.Sum32())
}

// Save writes sum and returns the path of the new snapshot.
func (s *Store) Save(sum *session.Summary) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	stamp := sum.Finished
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := fmt.Sprintf("%s_%s%s", key(sum.Root), stamp.UTC().Format(timeLayout), ext)
	path := filepath.Join(s.dir, name)
	if err := WriteFile(path, sum); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the snapshots of root, oldest first.
func (s *Store) List(root string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, key(root)+"_*"+ext))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	// Timestamps sort lexically.
	sort.Strings(files)
	return files, nil
}

// Latest returns the path of the newest snapshot of root.
func (s *Store) Latest(root string) (string, error) {
	files, err := s.List(root)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoSnapshot, root)
	}
	return files[len(files)-1], nil
}

// Previous returns the snapshot of root taken just before the newest one.
func (s *Store) Previous(root string) (string, error) {
	files, err := s.List(root)
	if err != nil {
		return "", err
	}
	if len(files) < 2 {
		return "", fmt.Errorf("%w: fewer than two snapshots for %s", ErrNoSnapshot, root)
	}
	return files[len(files)-2], nil
}

// LoadLatest reads the newest snapshot of root.
func (s *Store) LoadLatest(root string) (*session.Summary, error) {
	path, err := s.Latest(root)
	if err != nil {
		return nil, err
	}
	return Read(path)
}

// Timestamp returns when the newest snapshot of root was taken.
func (s *Store) Timestamp(root string) (time.Time, error) {
	path, err := s.Latest(root)
	if err != nil {
		return time.Time{}, err
	}
	return TimestampOf(path)
}

// TimestampOf parses the timestamp out of a snapshot filename.
func TimestampOf(path string) (time.Time, error) {
	base := strings.TrimSuffix(filepath.Base(path), ext)
	i := strings.IndexByte(base, '_')
	if i < 0 {
		return time.Time{}, fmt.Errorf("invalid snapshot filename %q", filepath.Base(path))
	}
	return time.Parse(timeLayout, base[i+1:])
}
