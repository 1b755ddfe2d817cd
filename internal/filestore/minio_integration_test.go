//go:build integration

package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

func startMinio(t *testing.T) (MinioConfig, *minio.Client) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	// Tag can be overridden by CSR_MINIO_TEST_TAG.
	tag := os.Getenv("CSR_MINIO_TEST_TAG")
	if tag == "" {
		tag = "RELEASE.2024-01-31T20-20-33Z"
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "minio/minio",
		Tag:        tag,
		Cmd:        []string{"server", "/data"},
		Env: []string{
			"MINIO_ROOT_USER=minio",
			"MINIO_ROOT_PASSWORD=minio123",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		t.Fatalf("could not start minio: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	endpoint := "localhost:" + resource.GetPort("9000/tcp")
	if err := pool.Retry(func() error {
		resp, err := http.Get("http://" + endpoint + "/minio/health/live")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("minio not ready: %d", resp.StatusCode)
		}
		return nil
	}); err != nil {
		t.Fatalf("minio not ready: %v", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minio", "minio123", ""),
	})
	if err != nil {
		t.Fatalf("minio client: %v", err)
	}

	cfg := MinioConfig{Endpoint: "http://" + endpoint, AccessKey: "minio", SecretKey: "minio123", Bucket: "attachments"}
	if err := client.MakeBucket(context.Background(), cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		t.Fatalf("make bucket: %v", err)
	}
	return cfg, client
}

func TestMinio_SaveOverwriteRemove(t *testing.T) {
	cfg, client := startMinio(t)
	ctx := context.Background()

	store, err := NewMinio(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}

	if _, err := store.Save(ctx, "notes.txt", strings.NewReader("one")); err != nil {
		t.Fatalf("save: %v", err)
	}
	n, err := store.Save(ctx, "notes.txt", strings.NewReader("two!"))
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 bytes stored, got %d", n)
	}

	obj, err := client.GetObject(ctx, cfg.Bucket, "notes.txt", minio.GetObjectOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(obj)
	_ = obj.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "two!" {
		t.Errorf("Expected overwritten content, got %q", body)
	}

	if err := store.Remove(ctx, "notes.txt"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := client.StatObject(ctx, cfg.Bucket, "notes.txt", minio.StatObjectOptions{}); err == nil {
		t.Error("Expected object to be gone after Remove")
	}
}

func TestNewMinio_MissingBucket(t *testing.T) {
	cfg, _ := startMinio(t)
	cfg.Bucket = "does-not-exist"

	if _, err := NewMinio(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestMinio_List(t *testing.T) {
	cfg, _ := startMinio(t)
	ctx := context.Background()

	store, err := NewMinio(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}
	for _, name := range []string{"a.txt", "b.png"} {
		if _, err := store.Save(ctx, name, strings.NewReader(name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	objs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(objs))
	}
}

func TestMinio_Stat(t *testing.T) {
	cfg, _ := startMinio(t)
	ctx := context.Background()

	store, err := NewMinio(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}
	if _, err := store.Save(ctx, "a.txt", strings.NewReader("abc")); err != nil {
		t.Fatalf("save: %v", err)
	}

	obj, err := store.Stat(ctx, "a.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if obj.Size != 3 || obj.ModTime.IsZero() {
		t.Errorf("unexpected object %+v", obj)
	}

	if _, err := store.Stat(ctx, "missing.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist for a missing object, got %v", err)
	}
}
