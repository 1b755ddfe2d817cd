package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"csr-intake/internal/filestore"
	"csr-intake/internal/requests"
)

// recordingStore wraps a real store and can be told to fail writes.
type recordingStore struct {
	filestore.Store

	mu       sync.Mutex
	failSave error
	saved    []string
	removed  []string
}

func (s *recordingStore) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	s.mu.Lock()
	failSave := s.failSave
	s.saved = append(s.saved, name)
	s.mu.Unlock()

	if failSave != nil {
		return 0, failSave
	}
	return s.Store.Save(ctx, name, r)
}

func (s *recordingStore) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.removed = append(s.removed, name)
	s.mu.Unlock()
	return s.Store.Remove(ctx, name)
}

// cancelingRepo cancels the request context mid-insert, as a client
// disconnect would.
type cancelingRepo struct {
	cancel context.CancelFunc
}

func (r cancelingRepo) InsertRequest(ctx context.Context, _ requests.Record) (int64, error) {
	r.cancel()
	return 0, fmt.Errorf("%w: %w", requests.ErrConnection, ctx.Err())
}

type fixture struct {
	proc  *Processor
	repo  *requests.MemoryRepository
	local *filestore.Local
	store *recordingStore
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	local, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)

	store := &recordingStore{Store: local}
	repo := requests.NewMemoryRepository()
	return &fixture{
		proc:  NewProcessor(repo, store, zap.NewNop(), opts),
		repo:  repo,
		local: local,
		store: store,
	}
}

func (f *fixture) rows(t *testing.T) []requests.Record {
	t.Helper()
	list, err := f.repo.ListRequests(context.Background(), 0)
	require.NoError(t, err)
	return list
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.local.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func withAttachment(name, content string) Submission {
	return Submission{
		Fields:     validFields(),
		Attachment: &Attachment{Filename: name, Content: strings.NewReader(content)},
	}
}

func TestProcess_ValidationRejectsWithoutSideEffects(t *testing.T) {
	f := newFixture(t, Options{})
	sub := withAttachment("report.pdf", "%PDF")
	sub.Fields.Confirmation = ""

	out := f.proc.Process(context.Background(), sub)

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, DispositionValidationError, out.Disposition)
	assert.ErrorIs(t, out.Err, ErrValidation)
	assert.Equal(t, []Message{{CategoryError, MsgValidation}}, out.Messages)
	assert.Empty(t, f.rows(t))
	assert.Empty(t, f.files(t))
	assert.Empty(t, f.store.saved)
}

func TestProcess_BadExtensionRejectsWithoutSideEffects(t *testing.T) {
	f := newFixture(t, Options{})

	out := f.proc.Process(context.Background(), withAttachment("tool.exe", "MZ"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, DispositionValidationError, out.Disposition)
	assert.ErrorIs(t, out.Err, ErrUnsupportedAttachment)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "Error: Invalid file type. Allowed: doc, docx, gif, jpeg, jpg, pdf, png, txt", out.Messages[0].Text)
	assert.Empty(t, f.rows(t))
	assert.Empty(t, f.files(t))
}

func TestProcess_CommitsWithAttachment(t *testing.T) {
	f := newFixture(t, Options{})

	out := f.proc.Process(context.Background(), withAttachment("../My Report.PDF", "%PDF-1.7"))

	require.True(t, out.Succeeded())
	assert.Equal(t, DispositionSuccess, out.Disposition)
	assert.Equal(t, "My_Report.PDF", out.StoredFile)
	assert.Equal(t, int64(8), out.StoredBytes)
	assert.Equal(t, []Message{{CategorySuccess, MsgSuccess}}, out.Messages)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, out.RecordID, rows[0].ID)
	assert.Equal(t, "My_Report.PDF", rows[0].FilePath)

	content, err := os.ReadFile(f.local.Path(rows[0].FilePath))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(content))
}

func TestProcess_CommitsWithoutAttachment(t *testing.T) {
	f := newFixture(t, Options{})
	sub := Submission{Fields: validFields()}
	sub.Fields.Phone = "555-0100"

	out := f.proc.Process(context.Background(), sub)

	require.True(t, out.Succeeded())
	rows := f.rows(t)
	require.Len(t, rows, 1)

	got := rows[0]
	want := validFields()
	assert.Equal(t, want.FullName, got.FullName)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, "555-0100", got.Phone)
	assert.Equal(t, want.RequestType, got.RequestType)
	assert.Equal(t, want.Subject, got.Subject)
	assert.Equal(t, want.Description, got.Description)
	assert.Empty(t, got.FilePath)
	assert.Empty(t, got.CustomerID)
	assert.Equal(t, DefaultContactTime, got.PreferredContactTime)
	assert.Empty(t, f.files(t))
}

func TestProcess_EmptyFilePartIsNoAttachment(t *testing.T) {
	f := newFixture(t, Options{})
	sub := Submission{Fields: validFields(), Attachment: &Attachment{Filename: "", Content: strings.NewReader("")}}

	out := f.proc.Process(context.Background(), sub)

	require.True(t, out.Succeeded())
	assert.Empty(t, out.StoredFile)
	assert.Empty(t, f.store.saved)
}

func TestProcess_RollbackRemovesAttachment(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"connection", fmt.Errorf("%w: refused", requests.ErrConnection), MsgConnection},
		{"persistence", fmt.Errorf("%w: constraint", requests.ErrPersistence), MsgPersistence},
		{"unclassified", errors.New("surprise"), MsgPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.repo.FailWith(tt.err)

			out := f.proc.Process(context.Background(), withAttachment("invoice.pdf", "%PDF"))

			assert.Equal(t, StateRolledBack, out.State)
			assert.Equal(t, DispositionStorageError, out.Disposition)
			assert.ErrorIs(t, out.Err, tt.err)
			assert.Empty(t, out.StoredFile)
			assert.Equal(t, []Message{{CategoryError, tt.wantMsg}}, out.Messages)
			assert.Equal(t, []string{"invoice.pdf"}, f.store.removed)
			assert.Empty(t, f.files(t))
			assert.Empty(t, f.rows(t))
		})
	}
}

func TestProcess_RollbackWithoutAttachmentRemovesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.repo.FailWith(fmt.Errorf("%w: refused", requests.ErrConnection))

	out := f.proc.Process(context.Background(), Submission{Fields: validFields()})

	assert.Equal(t, StateRolledBack, out.State)
	assert.Empty(t, f.store.removed)
}

func TestProcess_RollbackRunsAfterCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := NewProcessor(cancelingRepo{cancel: cancel}, f.store, zap.NewNop(), Options{})

	out := proc.Process(ctx, withAttachment("late.txt", "x"))

	assert.Equal(t, StateRolledBack, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, []string{"late.txt"}, f.store.removed)
	assert.Empty(t, f.files(t))
}

func TestProcess_WriteFailureContinuesWithoutFile(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.failSave = errors.New("disk full")

	out := f.proc.Process(context.Background(), withAttachment("photo.png", "png"))

	require.True(t, out.Succeeded())
	assert.True(t, out.Warned())
	assert.ErrorIs(t, out.AttachmentErr, ErrAttachmentWrite)
	assert.Empty(t, out.StoredFile)
	assert.Equal(t, []Message{
		{CategoryError, MsgAttachmentWrite},
		{CategorySuccess, MsgSuccess},
	}, out.Messages)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].FilePath)
	assert.Empty(t, f.store.removed)
}

func TestProcess_SameNameOverwrites(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first := f.proc.Process(ctx, withAttachment("notes.txt", "first"))
	second := f.proc.Process(ctx, withAttachment("notes.txt", "second"))
	require.True(t, first.Succeeded())
	require.True(t, second.Succeeded())

	rows := f.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "notes.txt", rows[0].FilePath)
	assert.Equal(t, "notes.txt", rows[1].FilePath)
	assert.Less(t, rows[0].ID, rows[1].ID)

	content, err := os.ReadFile(f.local.Path("notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
	assert.Equal(t, []string{"notes.txt"}, f.files(t))
}

func TestProcess_UniqueFilenames(t *testing.T) {
	f := newFixture(t, Options{UniqueFilenames: true})
	ctx := context.Background()

	first := f.proc.Process(ctx, withAttachment("notes.txt", "first"))
	second := f.proc.Process(ctx, withAttachment("notes.txt", "second"))
	require.True(t, first.Succeeded())
	require.True(t, second.Succeeded())

	assert.NotEqual(t, first.StoredFile, second.StoredFile)
	assert.True(t, strings.HasSuffix(first.StoredFile, "_notes.txt"))
	assert.Len(t, f.files(t), 2)

	content, err := os.ReadFile(f.local.Path(first.StoredFile))
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
}

func TestProcess_UniqueFilenamesKeepLongNames(t *testing.T) {
	f := newFixture(t, Options{UniqueFilenames: true})

	out := f.proc.Process(context.Background(), withAttachment(strings.Repeat("a", 250)+".pdf", "%PDF"))

	require.True(t, out.Succeeded())
	assert.False(t, out.Warned(), "attachment dropped: %v", out.AttachmentErr)
	assert.LessOrEqual(t, len(out.StoredFile), maxFilenameLen)
	assert.True(t, strings.HasSuffix(out.StoredFile, ".pdf"))
	assert.Equal(t, []string{out.StoredFile}, f.files(t))
	assert.Equal(t, out.StoredFile, f.rows(t)[0].FilePath)
}

func TestProcess_ConcurrentSubmissions(t *testing.T) {
	f := newFixture(t, Options{})
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := f.proc.Process(context.Background(), withAttachment("shared.txt", fmt.Sprintf("payload-%02d", i)))
			assert.True(t, out.Succeeded())
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.rows(t), n)
	// One complete payload wins; never an interleaving of two.
	content, err := os.ReadFile(f.local.Path("shared.txt"))
	require.NoError(t, err)
	assert.Regexp(t, `^payload-\d\d$`, string(content))
	assert.Equal(t, []string{"shared.txt"}, f.files(t))
}

func TestStateTerminal(t *testing.T) {
	terminal := map[State]bool{StateRejected: true, StateCommitted: true, StateRolledBack: true}
	for s := StateReceived; s <= StateRolledBack; s++ {
		assert.Equal(t, terminal[s], s.Terminal(), s.String())
	}
	assert.Equal(t, "state(99)", State(99).String())
}
