package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNetworkFilesystem is wrapped by every FilesystemError.
var ErrNetworkFilesystem = errors.New("sqlite database on a network filesystem")

// Mount describes the filesystem holding a path. Type is the kernel's name for
// it, or its hex magic number when the kernel has none.
type Mount struct {
	Type   string
	Remote bool
}

// FilesystemError rejects a SQLite path whose mount cannot provide the file
// locks that deduplicating inserts rely on.
type FilesystemError struct {
	Path  string
	Mount Mount
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("sqlite database %q is on network filesystem %q; message deduplication depends on local file locking. Point store.dsn (or INBOX_STORE_DSN) at a local path or use the postgres driver",
		e.Path, e.Mount.Type)
}

func (e *FilesystemError) Unwrap() error { return ErrNetworkFilesystem }

type mountStater func(dir string) (Mount, error)

// ValidateSQLiteFilesystem returns a *FilesystemError when the database file
// at path would live on a remote mount. The file need not exist yet.
func ValidateSQLiteFilesystem(path string) error {
	return checkLocalMount(path, statMount)
}

func checkLocalMount(path string, stat mountStater) error {
	if path == "" {
		return errors.New("sqlite path is empty")
	}
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve sqlite path %q: %w", path, err)
	}
	m, err := stat(dir)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %q: %w", dir, err)
	}
	if m.Remote {
		return &FilesystemError{Path: path, Mount: m}
	}
	return nil
}

// existingAncestor returns the absolute path itself, or its closest parent
// that exists.
func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(dir)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", fmt.Errorf("no existing ancestor: %w", err)
		}
		dir = up
	}
}
