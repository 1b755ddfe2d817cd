package requests

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps records in process. It backs tests and local
// experiments; failures can be injected with FailWith.
type MemoryRepository struct {
	mu      sync.Mutex
	records []Record
	nextID  int64
	failErr error
	now     func() time.Time
}

// NewMemoryRepository returns an empty repository whose ids start at 1.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, now: time.Now}
}

// FailWith makes every following insert return err; nil restores normal
// behaviour. Use errors wrapping ErrConnection or ErrPersistence.
func (m *MemoryRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemoryRepository) InsertRequest(ctx context.Context, rec Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return 0, m.failErr
	}

	rec.ID = m.nextID
	rec.SubmittedAt = m.now().UTC()
	m.nextID++
	m.records = append(m.records, rec)
	return rec.ID, nil
}

func (m *MemoryRepository) ListRequests(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]Record, limit)
	copy(out, m.records[:limit])
	return out, nil
}

func (m *MemoryRepository) CountRequests(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *MemoryRepository) ReferencedFiles(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	refs := make(map[string]struct{})
	for _, rec := range m.records {
		if rec.FilePath != "" {
			refs[rec.FilePath] = struct{}{}
		}
	}
	return refs, nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Reader     = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
	_ Reader     = (*PostgresRepository)(nil)
)
