package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

// StoreOptions configures an AtomicStore.
type StoreOptions struct {
	// AllowSymlinks permits writing through a symbolic link at the target path.
	AllowSymlinks bool
	// Cache memoizes parsed documents. A nil cache disables memoization.
	Cache *DocumentCache
	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// AtomicStore reads and writes the document with an optimistic concurrency
// guard. Every write goes to a sibling temp file that is renamed over the
// target, so readers see either the old or the new content.
type AtomicStore struct {
	allowSymlinks bool
	cache         *DocumentCache
	logger        *slog.Logger
}

// NewAtomicStore creates an AtomicStore.
func NewAtomicStore(opts StoreOptions) *AtomicStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AtomicStore{
		allowSymlinks: opts.AllowSymlinks,
		cache:         opts.Cache,
		logger:        logger,
	}
}

// ReadWithFingerprint parses the document at path. The fingerprint comes from
// the handle used for the read so it describes exactly the bytes parsed.
func (s *AtomicStore) ReadWithFingerprint(path string) (*models.TickFile, Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Fingerprint{}, &NotFoundError{Path: path}
		}
		return nil, Fingerprint{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	fp := fingerprintOf(path, info)

	if s.cache != nil {
		if doc, ok := s.cache.Get(fp); ok {
			s.logger.Debug("document cache hit", "path", path, "size", fp.Size)
			return doc, fp, nil
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, Fingerprint{}, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, Fingerprint{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.cache != nil {
		s.cache.Put(fp, doc)
	}
	return doc, fp, nil
}

// WriteIfUnchanged serializes doc and replaces the file at path. When expected
// is non-nil the file is re-stated immediately before the write and any
// difference in mtime or size aborts with *ConcurrentModificationError,
// leaving the file untouched. A nil expected writes unconditionally.
func (s *AtomicStore) WriteIfUnchanged(path string, doc *models.TickFile, expected *Fingerprint) (Fingerprint, error) {
	data, err := Serialize(doc)
	if err != nil {
		return Fingerprint{}, err
	}

	target, err := s.resolveTarget(path)
	if err != nil {
		return Fingerprint{}, err
	}

	if expected != nil {
		actual := Fingerprint{Path: path}
		info, err := os.Stat(path)
		switch {
		case err == nil:
			actual = fingerprintOf(path, info)
		case !errors.Is(err, fs.ErrNotExist):
			return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
		}
		if !expected.Matches(actual) {
			if s.cache != nil {
				s.cache.Invalidate()
			}
			return Fingerprint{}, &ConcurrentModificationError{Path: path, Expected: *expected, Actual: actual}
		}
	}

	if err := WriteFileAtomic(target, data, 0o644); err != nil {
		return Fingerprint{}, fmt.Errorf("writing %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s after write: %w", path, err)
	}
	fp := fingerprintOf(path, info)
	if s.cache != nil {
		s.cache.Put(fp, doc)
	}
	s.logger.Debug("document written", "path", path, "size", fp.Size)
	return fp, nil
}

// Exists reports whether a document is present at path.
func (s *AtomicStore) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// resolveTarget returns the path the rename must land on. A symlink is
// refused unless allowed, in which case the link itself is preserved and its
// destination is replaced.
func (s *AtomicStore) resolveTarget(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return path, nil
	}
	if !s.allowSymlinks {
		return "", &SymlinkError{Path: path}
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolving symlink %s: %w", path, err)
	}
	return resolved, nil
}

// WriteFileAtomic writes data to a uniquely named sibling of path, syncs it
// and renames it over path. The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), time.Now().UnixNano()))

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func fingerprintOf(path string, info fs.FileInfo) Fingerprint {
	return Fingerprint{Path: path, ModTime: info.ModTime(), Size: info.Size()}
}
