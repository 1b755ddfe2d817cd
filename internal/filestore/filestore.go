// Package filestore persists submission attachments under a flat namespace
// of already sanitized names.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrInvalidName is returned for names that are empty or would escape the
// store's namespace.
var ErrInvalidName = errors.New("invalid attachment name")

// Store saves and removes attachments by name. Saving an existing name
// replaces its content.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	Remove(ctx context.Context, name string) error
}

// Object describes one stored attachment.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Lister enumerates and inspects stored attachments. Stat of a missing name
// returns an error wrapping fs.ErrNotExist.
type Lister interface {
	List(ctx context.Context) ([]Object, error)
	Stat(ctx context.Context, name string) (Object, error)
}

// Backend is a store that can also be enumerated for maintenance.
type Backend interface {
	Store
	Lister
}

// Backend kinds accepted by Open.
const (
	KindLocal = "local"
	KindMinio = "minio"
)

// Open builds the backend named by kind. The local directory is created when
// missing; a MinIO bucket must already exist.
func Open(ctx context.Context, kind, dir string, mc MinioConfig) (Backend, error) {
	switch kind {
	case KindLocal:
		store, err := NewLocal(dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case KindMinio:
		store, err := NewMinio(ctx, mc)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
