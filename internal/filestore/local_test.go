package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestNewLocal_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	store, err := NewLocal(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewLocal_Empty(t *testing.T) {
	_, err := NewLocal("")
	assert.Error(t, err)
}

func TestLocal_SaveAndOverwrite(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Save(ctx, "report.pdf", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = store.Save(ctx, "report.pdf", strings.NewReader("second version"))
	require.NoError(t, err)

	got, err := os.ReadFile(store.Path("report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "second version", string(got))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocal_SaveFailureLeavesNothing(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "notes.txt", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_RejectsUnsafeNames(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape.txt", `dir\file.txt`, "a/b.txt"} {
		_, err := store.Save(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		assert.ErrorIs(t, store.Remove(context.Background(), name), ErrInvalidName, "name %q", name)
	}
}

func TestLocal_Remove(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "photo.png", strings.NewReader("png"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "photo.png"))
	_, err = os.Stat(store.Path("photo.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Removing again is fine.
	assert.NoError(t, store.Remove(ctx, "photo.png"))
}

func TestLocal_SaveCanceledContext(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Save(ctx, "late.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_List(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "a.txt", strings.NewReader("aa"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "b.pdf", strings.NewReader("bbb"))
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "subdir"), 0o750))

	objs, err := store.List(ctx)
	require.NoError(t, err)

	sizes := map[string]int64{}
	for _, o := range objs {
		sizes[o.Name] = o.Size
		assert.False(t, o.ModTime.IsZero())
	}
	assert.Equal(t, map[string]int64{"a.txt": 2, "b.pdf": 3}, sizes)
}

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	store, err := Open(context.Background(), KindLocal, dir, MinioConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = os.Stat(dir)
	assert.NoError(t, err)

	_, err = Open(context.Background(), "ftp", dir, MinioConfig{})
	assert.Error(t, err)

	_, err = Open(context.Background(), KindMinio, "", MinioConfig{Endpoint: "minio:9000"})
	assert.Error(t, err)
}

func TestLocal_Stat(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "a.txt", strings.NewReader("abc"))
	require.NoError(t, err)

	obj, err := store.Stat(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", obj.Name)
	assert.Equal(t, int64(3), obj.Size)
	assert.False(t, obj.ModTime.IsZero())

	_, err = store.Stat(ctx, "missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = store.Stat(ctx, "../a.txt")
	assert.ErrorIs(t, err, ErrInvalidName)
}
