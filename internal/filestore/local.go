package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores attachments as files in one directory.
type Local struct {
	dir string
}

// NewLocal creates dir if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the directory attachments are written to.
func (l *Local) Dir() string {
	return l.dir
}

// Path returns the on-disk location for name.
func (l *Local) Path(name string) string {
	return filepath.Join(l.dir, name)
}

// Save writes r to a temporary file in the same directory and renames it over
// name, so readers never observe a partial attachment.
func (l *Local) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	size, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write attachment: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("fsync attachment: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close attachment: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o640); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("chmod attachment: %w", err)
	}

	if err := os.Rename(tmpPath, l.Path(name)); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename attachment: %w", err)
	}

	return size, nil
}

// List returns the regular files in the directory, including temp files
// left by interrupted writes.
func (l *Local) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload directory: %w", err)
	}

	out := make([]Object, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Object{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Stat describes the stored file name.
func (l *Local) Stat(_ context.Context, name string) (Object, error) {
	if err := checkName(name); err != nil {
		return Object{}, err
	}
	info, err := os.Stat(l.Path(name))
	if err != nil {
		return Object{}, fmt.Errorf("stat attachment %s: %w", name, err)
	}
	return Object{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Remove deletes name. A missing file is not an error.
func (l *Local) Remove(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(l.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove attachment %s: %w", name, err)
	}
	return nil
}
