// Package cleanup removes stored attachments that no request row references.
//
// Orphans appear when the process dies between writing an attachment and
// either committing its row or removing the file again. Temp files from
// interrupted local writes are orphans too.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"csr-intake/internal/filestore"
)

// DefaultMinAge keeps files young enough to belong to an in-flight submission.
const DefaultMinAge = time.Hour

// References reports which stored names are in use.
type References interface {
	ReferencedFiles(ctx context.Context) (map[string]struct{}, error)
}

// Config controls a prune run.
type Config struct {
	MinAge time.Duration
	DryRun bool
	Now    func() time.Time
}

// Report summarizes a prune run.
type Report struct {
	Scanned int
	Orphans []string
	Removed int
	Failed  int
}

// PruneOrphans removes files older than cfg.MinAge that no row references.
// The store is listed before the references are read so that a row committed
// during the run is never missed, and each candidate is stat'ed again right
// before removal so a file rewritten in the meantime is kept.
func PruneOrphans(ctx context.Context, store filestore.Backend, refs References, cfg Config, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = DefaultMinAge
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	start := now()
	objs, err := store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list stored files: %w", err)
	}
	used, err := refs.ReferencedFiles(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read referenced files: %w", err)
	}

	cutoff := start.Add(-cfg.MinAge)
	rep := Report{Scanned: len(objs)}
	for _, obj := range objs {
		if _, ok := used[obj.Name]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}

		// A submission may have rewritten the name since the listing,
		// before its row committed.
		cur, err := store.Stat(ctx, obj.Name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			rep.Failed++
			logger.Warn("stat orphan failed", zap.String("file", obj.Name), zap.Error(err))
			continue
		}
		if cur.ModTime.After(cutoff) {
			logger.Info("skipping rewritten file", zap.String("file", obj.Name))
			continue
		}

		rep.Orphans = append(rep.Orphans, obj.Name)
		if cfg.DryRun {
			continue
		}

		if err := store.Remove(ctx, obj.Name); err != nil {
			rep.Failed++
			logger.Warn("remove orphan failed", zap.String("file", obj.Name), zap.Error(err))
			continue
		}
		rep.Removed++
		logger.Info("removed orphan",
			zap.String("file", obj.Name),
			zap.Int64("bytes", obj.Size),
			zap.Duration("age", start.Sub(obj.ModTime)))
	}

	logger.Info("prune complete",
		zap.Int("scanned", rep.Scanned),
		zap.Int("orphans", len(rep.Orphans)),
		zap.Int("removed", rep.Removed),
		zap.Int("failed", rep.Failed),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Duration("duration", now().Sub(start)))
	return rep, nil
}
