package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/access"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/keys"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/objectstore"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMasterKey = bytes.Repeat([]byte{7}, cryptox.KeySize)

// faultyStore fails the next N calls of an operation with err.
type faultyStore struct {
	*objectstore.MemoryStore

	mu          sync.Mutex
	err         error
	putFails    int
	getFails    int
	deleteFails int
	puts        int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: objectstore.NewMemoryStore(), err: common.ErrTransient}
}

func (f *faultyStore) take(n *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *n > 0 {
		*n--
		return true
	}
	return false
}

func (f *faultyStore) Put(ctx context.Context, key string, data []byte, ct string) error {
	f.mu.Lock()
	f.puts++
	f.mu.Unlock()
	if f.take(&f.putFails) {
		return f.err
	}
	return f.MemoryStore.Put(ctx, key, data, ct)
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.take(&f.getFails) {
		return nil, f.err
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	if f.take(&f.deleteFails) {
		return f.err
	}
	return f.MemoryStore.Delete(ctx, key)
}

func (f *faultyStore) setFails(put, get, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putFails, f.getFails, f.deleteFails = put, get, del
}

// failingCreateManager makes every Create fail with err.
type failingCreateManager struct {
	*repomanager.MemoryRepositoryManager
	err error
}

func (m failingCreateManager) Files(db dbx.DBTX) files.Repository {
	return failingCreateRepo{Repository: m.MemoryRepositoryManager.Files(db), err: m.err}
}

type failingCreateRepo struct {
	files.Repository
	err error
}

func (r failingCreateRepo) Create(context.Context, *models.File) error { return r.err }

// flakyState injects catalog failures. Create and MarkDeleting apply the
// change and then report common.ErrTransient, like a connection lost after
// commit.
type flakyState struct {
	mu                   sync.Mutex
	commitThenFailCreate int
	commitThenFailMark   int
	getFails             int
	deleteErr            error
}

func (st *flakyState) take(n *int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if *n > 0 {
		*n--
		return true
	}
	return false
}

func (st *flakyState) set(fn func(st *flakyState)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st)
}

type flakyManager struct {
	*repomanager.MemoryRepositoryManager
	st *flakyState
}

func newFlakyManager() flakyManager {
	return flakyManager{MemoryRepositoryManager: repomanager.NewMemoryRepositoryManager(), st: &flakyState{}}
}

func (m flakyManager) Files(db dbx.DBTX) files.Repository {
	return flakyRepo{Repository: m.MemoryRepositoryManager.Files(db), st: m.st}
}

type flakyRepo struct {
	files.Repository
	st *flakyState
}

func (r flakyRepo) Create(ctx context.Context, f *models.File) error {
	if err := r.Repository.Create(ctx, f); err != nil {
		return err
	}
	if r.st.take(&r.st.commitThenFailCreate) {
		return fmt.Errorf("%w: connection reset", common.ErrTransient)
	}
	return nil
}

func (r flakyRepo) MarkDeleting(ctx context.Context, id string) error {
	if err := r.Repository.MarkDeleting(ctx, id); err != nil {
		return err
	}
	if r.st.take(&r.st.commitThenFailMark) {
		return fmt.Errorf("%w: connection reset", common.ErrTransient)
	}
	return nil
}

func (r flakyRepo) Get(ctx context.Context, id string) (*models.File, error) {
	if r.st.take(&r.st.getFails) {
		return nil, fmt.Errorf("%w: connection reset", common.ErrTransient)
	}
	return r.Repository.Get(ctx, id)
}

func (r flakyRepo) Delete(ctx context.Context, id string) error {
	r.st.mu.Lock()
	err := r.st.deleteErr
	r.st.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.Delete(ctx, id)
}

type harness struct {
	svc       *FileService
	rm        repomanager.RepositoryManager
	store     *faultyStore
	reclaimer *Reclaimer
	cfg       *config.Config
}

func newHarness(t *testing.T, tweak func(h *harness)) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.MaxUploadSize = 1 << 20

	h := &harness{
		rm:    repomanager.NewMemoryRepositoryManager(),
		store: newFaultyStore(),
		cfg:   cfg,
	}
	if tweak != nil {
		tweak(h)
	}

	hasher, err := keys.NewHasher([]byte("pepper"))
	require.NoError(t, err)

	gate := access.NewGate(h.rm.Files(nil), hasher, access.Options{
		MaxFailedAttempts:   cfg.MaxFailedAttempts,
		FailedAttemptWindow: cfg.FailedAttemptWindow,
	}, logging.Nop{})

	h.reclaimer = NewReclaimer(dbx.NoopTransactor{}, h.rm, h.store, time.Minute, logging.Nop{})
	h.svc = NewFileService(nil, h.rm, h.store, gate, hasher, testMasterKey, h.reclaimer, cfg, logging.Nop{})
	return h
}

func (h *harness) upload(t *testing.T, owner, name, ct string, data []byte) *UploadResult {
	t.Helper()
	res, err := h.svc.Upload(context.Background(), UploadParams{
		Reader:      bytes.NewReader(data),
		FileName:    name,
		ContentType: ct,
		OwnerID:     owner,
	})
	require.NoError(t, err)
	return res
}

func readAll(t *testing.T, d *models.Download) []byte {
	t.Helper()
	b, err := io.ReadAll(d.Content)
	require.NoError(t, err)
	return b
}

// offByOne changes the last character of key to a different valid one.
func offByOne(key string) string {
	last := key[len(key)-1]
	repl := byte('A')
	if last == 'A' {
		repl = 'B'
	}
	return key[:len(key)-1] + string(repl)
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	content := []byte("%PDF-1.7 quarterly numbers")
	res := h.upload(t, "alice", "report.pdf", "application/pdf", content)

	assert.NotEmpty(t, res.FileID)
	assert.NotEmpty(t, res.DownloadKey)

	d, err := h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", d.FileName)
	assert.Equal(t, "application/pdf", d.ContentType)
	assert.Equal(t, int64(len(content)), d.Size)
	assert.Equal(t, content, readAll(t, d))
}

func TestUpload_StoresCiphertextAndHashOnly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	content := []byte("plain secret content")
	res := h.upload(t, "alice", "a.txt", "text/plain", content)

	rec, err := h.rm.Files(nil).Get(ctx, res.FileID)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(res.DownloadKey), rec.KeyHash)
	assert.NotContains(t, string(rec.KeyHash), res.DownloadKey)

	stored, err := h.store.MemoryStore.Get(ctx, rec.StorageKey)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(stored, content), "bytes at rest must be encrypted")
}

func TestUpload_EmptyFileAllowed(t *testing.T) {
	h := newHarness(t, nil)

	res := h.upload(t, "alice", "empty.txt", "text/plain", nil)

	d, err := h.svc.Download(context.Background(), res.FileID, "alice", res.DownloadKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Size)
	assert.Empty(t, readAll(t, d))
}

func TestReportPDFScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	content := []byte("report body")
	res := h.upload(t, "alice", "report.pdf", "application/pdf", content)

	list, err := h.svc.List(ctx, "alice", models.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.FileID, list[0].ID)
	assert.Equal(t, "report.pdf", list[0].FileName)

	list, err = h.svc.List(ctx, "bob", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.svc.Download(ctx, res.FileID, "bob", res.DownloadKey)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = h.svc.Download(ctx, res.FileID, "alice", "wrong-key")
	assert.ErrorIs(t, err, common.ErrInvalidKey)

	d, err := h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	require.NoError(t, err)
	assert.Equal(t, content, readAll(t, d))

	require.NoError(t, h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey))

	_, err = h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	list, err = h.svc.List(ctx, "alice", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, h.store.Len())
}

func TestDownload_OneCharOffKeyDenied(t *testing.T) {
	h := newHarness(t, nil)
	res := h.upload(t, "alice", "a.bin", "", []byte{1, 2, 3})

	_, err := h.svc.Download(context.Background(), res.FileID, "alice", offByOne(res.DownloadKey))
	assert.ErrorIs(t, err, common.ErrInvalidKey)
	assert.True(t, common.IsDeny(err))
}

func TestDownload_UnknownFile(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Download(context.Background(), "missing", "alice", "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDownload_ThrottledAfterFailures(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.cfg.MaxFailedAttempts = 2 })
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	for i := 0; i < 2; i++ {
		_, err := h.svc.Download(ctx, res.FileID, "alice", "bad")
		require.ErrorIs(t, err, common.ErrInvalidKey)
	}

	_, err := h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	assert.ErrorIs(t, err, common.ErrTooManyAttempts)
}

func TestDelete_Twice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	require.NoError(t, h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey))

	err := h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.True(t, common.IsDeny(err))
}

func TestDelete_RequiresOwnerAndKey(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	assert.ErrorIs(t, h.svc.Delete(ctx, res.FileID, "bob", res.DownloadKey), common.ErrForbidden)
	assert.ErrorIs(t, h.svc.Delete(ctx, res.FileID, "alice", offByOne(res.DownloadKey)), common.ErrInvalidKey)

	_, err := h.svc.Get(ctx, res.FileID, "alice")
	assert.NoError(t, err)
}

func TestDelete_ConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.cfg.MaxFailedAttempts = 0 })
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	const n = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
		errs      = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := h.svc.Delete(context.Background(), res.FileID, "alice", res.DownloadKey)
			if err == nil {
				successes.Add(1)
				return
			}
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), successes.Load())
	for err := range errs {
		assert.True(t, common.IsDeny(err), "unexpected error: %v", err)
	}
}

func TestDownloadDeleteRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, func(h *harness) { h.cfg.MaxFailedAttempts = 0 })
		content := []byte(fmt.Sprintf("payload-%d", i))
		res := h.upload(t, "alice", "a.txt", "text/plain", content)

		var wg sync.WaitGroup
		var dlErr, delErr error
		var got []byte
		wg.Add(2)
		go func() {
			defer wg.Done()
			d, err := h.svc.Download(context.Background(), res.FileID, "alice", res.DownloadKey)
			if err != nil {
				dlErr = err
				return
			}
			got, dlErr = io.ReadAll(d.Content)
		}()
		go func() {
			defer wg.Done()
			delErr = h.svc.Delete(context.Background(), res.FileID, "alice", res.DownloadKey)
		}()
		wg.Wait()

		require.NoError(t, delErr)
		if dlErr != nil {
			require.ErrorIs(t, dlErr, common.ErrorNotFound)
			continue
		}
		require.Equal(t, content, got)
	}
}

func TestListAndGet_IsolateOwners(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	a := h.upload(t, "alice", "a.pdf", "application/pdf", []byte("a"))
	h.upload(t, "alice", "b.png", "image/png", []byte("bb"))
	b := h.upload(t, "bob", "c.png", "image/png", []byte("ccc"))

	list, err := h.svc.List(ctx, "alice", models.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, f := range list {
		assert.Equal(t, "alice", f.OwnerID)
	}

	images, err := h.svc.List(ctx, "alice", models.Filter{ContentType: "image/*"})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "b.png", images[0].FileName)

	got, err := h.svc.Get(ctx, a.FileID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.FileName)

	_, err = h.svc.Get(ctx, b.FileID, "alice")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	st, err := h.svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &models.Stats{FileCount: 2, TotalBytes: 3}, st)
}

func TestList_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.List(ctx, "alice", models.Filter{Limit: -1})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.svc.List(ctx, "", models.Filter{})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name    string
		tweak   func(h *harness)
		params  UploadParams
		wantErr error
	}{
		{
			name:    "no owner",
			params:  UploadParams{Reader: strings.NewReader("x"), FileName: "a.txt"},
			wantErr: common.ErrorUnauthorized,
		},
		{
			name:    "empty name",
			params:  UploadParams{Reader: strings.NewReader("x"), FileName: "  ", OwnerID: "alice"},
			wantErr: common.ErrValidation,
		},
		{
			name:    "blocked extension",
			params:  UploadParams{Reader: strings.NewReader("x"), FileName: "setup.EXE", OwnerID: "alice"},
			wantErr: common.ErrValidation,
		},
		{
			name:    "bad content type",
			params:  UploadParams{Reader: strings.NewReader("x"), FileName: "a.txt", ContentType: "not a type", OwnerID: "alice"},
			wantErr: common.ErrValidation,
		},
		{
			name:    "no reader",
			params:  UploadParams{FileName: "a.txt", OwnerID: "alice"},
			wantErr: common.ErrValidation,
		},
		{
			name:    "too large",
			tweak:   func(h *harness) { h.cfg.MaxUploadSize = 4 },
			params:  UploadParams{Reader: strings.NewReader("12345"), FileName: "a.txt", OwnerID: "alice"},
			wantErr: common.ErrTooLarge,
		},
		{
			name:    "type not allowed",
			tweak:   func(h *harness) { h.cfg.AllowedContentTypes = []string{"image/*", "application/pdf"} },
			params:  UploadParams{Reader: strings.NewReader("x"), FileName: "a.txt", ContentType: "text/plain", OwnerID: "alice"},
			wantErr: common.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.tweak)
			_, err := h.svc.Upload(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, h.store.Len())
		})
	}
}

func TestUpload_NormalizesNameAndType(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.cfg.AllowedContentTypes = []string{"image/*"} })
	ctx := context.Background()

	res := h.upload(t, "alice", `..\..\photos/cat.PNG`, "Image/PNG; charset=binary", []byte("png"))

	got, err := h.svc.Get(ctx, res.FileID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "cat.PNG", got.FileName)
	assert.Equal(t, "image/png", got.ContentType)
}

func TestUpload_DefaultContentType(t *testing.T) {
	h := newHarness(t, nil)

	res := h.upload(t, "alice", "blob", "", []byte("x"))

	got, err := h.svc.Get(context.Background(), res.FileID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", got.ContentType)
}

func TestUpload_RetriesTransientPut(t *testing.T) {
	h := newHarness(t, nil)
	h.store.setFails(2, 0, 0)

	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	assert.NotEmpty(t, res.FileID)
	assert.Equal(t, 3, h.store.puts)
}

func TestUpload_GivesUpAfterRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.store.setFails(100, 0, 0)

	_, err := h.svc.Upload(context.Background(), UploadParams{
		Reader: strings.NewReader("x"), FileName: "a.txt", OwnerID: "alice",
	})
	assert.ErrorIs(t, err, common.ErrTransient)
	assert.Equal(t, int(h.cfg.RetryAttempts)+1, h.store.puts)

	list, err := h.svc.List(context.Background(), "alice", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_NonTransientPutNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.store.err = errors.New("access denied")
	h.store.setFails(100, 0, 0)

	_, err := h.svc.Upload(context.Background(), UploadParams{
		Reader: strings.NewReader("x"), FileName: "a.txt", OwnerID: "alice",
	})
	assert.Error(t, err)
	assert.Equal(t, 1, h.store.puts)
}

func TestUpload_CreateFailureRemovesBytes(t *testing.T) {
	dbErr := errors.New("constraint violated")
	h := newHarness(t, func(h *harness) {
		h.rm = failingCreateManager{MemoryRepositoryManager: repomanager.NewMemoryRepositoryManager(), err: dbErr}
	})

	_, err := h.svc.Upload(context.Background(), UploadParams{
		Reader: strings.NewReader("x"), FileName: "a.txt", OwnerID: "alice",
	})
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0, h.reclaimer.Pending())
}

func TestUpload_CreateFailureQueuesOrphan(t *testing.T) {
	dbErr := errors.New("constraint violated")
	h := newHarness(t, func(h *harness) {
		h.rm = failingCreateManager{MemoryRepositoryManager: repomanager.NewMemoryRepositoryManager(), err: dbErr}
	})
	h.store.setFails(0, 0, 1)

	_, err := h.svc.Upload(context.Background(), UploadParams{
		Reader: strings.NewReader("x"), FileName: "a.txt", OwnerID: "alice",
	})
	require.ErrorIs(t, err, dbErr)
	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.reclaimer.Pending())

	r := h.reclaimer.RunOnce(context.Background())
	assert.Equal(t, 1, r.OrphansRemoved)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0, h.reclaimer.Pending())
}

func TestUpload_CanceledLeavesNoRecord(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Upload(ctx, UploadParams{
		Reader: strings.NewReader("x"), FileName: "a.txt", OwnerID: "alice",
	})
	assert.Error(t, err)

	list, err := h.svc.List(context.Background(), "alice", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, h.store.Len())
}

func TestDownload_MissingBytesIsIntegrityError(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	rec, err := h.rm.Files(nil).Get(ctx, res.FileID)
	require.NoError(t, err)
	require.NoError(t, h.store.MemoryStore.Delete(ctx, rec.StorageKey))

	_, err = h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestDownload_TamperedBytesIsIntegrityError(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("hello"))

	rec, err := h.rm.Files(nil).Get(ctx, res.FileID)
	require.NoError(t, err)
	require.NoError(t, h.store.MemoryStore.Put(ctx, rec.StorageKey, []byte("garbage-bytes-garbage"), "text/plain"))

	_, err = h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestDownload_RetriesTransientGet(t *testing.T) {
	h := newHarness(t, nil)
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))
	h.store.setFails(0, 2, 0)

	d, err := h.svc.Download(context.Background(), res.FileID, "alice", res.DownloadKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), readAll(t, d))
}

func TestDelete_ByteFailureRestoresFile(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	h.store.setFails(0, 0, 100)
	err := h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey)
	require.ErrorIs(t, err, common.ErrTransient)

	h.store.setFails(0, 0, 0)
	d, err := h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), readAll(t, d))

	require.NoError(t, h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey))
}

func TestUpload_CommittedCreateWithTransientError(t *testing.T) {
	rm := newFlakyManager()
	rm.st.commitThenFailCreate = 1
	h := newHarness(t, func(h *harness) { h.rm = rm })
	ctx := context.Background()

	res, err := h.svc.Upload(ctx, UploadParams{
		Reader: strings.NewReader("payload"), FileName: "a.txt", ContentType: "text/plain", OwnerID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 0, h.reclaimer.Pending())

	d, err := h.svc.Download(ctx, res.FileID, "alice", res.DownloadKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), readAll(t, d))
}

func TestUpload_UnknownCreateOutcomeKeepsBytes(t *testing.T) {
	rm := newFlakyManager()
	rm.st.commitThenFailCreate = 1
	rm.st.getFails = 100
	h := newHarness(t, func(h *harness) { h.rm = rm })
	ctx := context.Background()

	_, err := h.svc.Upload(ctx, UploadParams{
		Reader: strings.NewReader("payload"), FileName: "a.txt", OwnerID: "alice",
	})
	require.ErrorIs(t, err, common.ErrDuplicateID)
	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.reclaimer.Pending())

	// Catalog still unreachable: the key stays queued and the bytes stay.
	r := h.reclaimer.RunOnce(ctx)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, h.reclaimer.Pending())
	assert.Equal(t, 1, h.store.Len())

	rm.st.set(func(st *flakyState) { st.getFails = 0 })
	r = h.reclaimer.RunOnce(ctx)
	assert.Equal(t, 0, r.OrphansRemoved)
	assert.Equal(t, 0, h.reclaimer.Pending())
	assert.Equal(t, 1, h.store.Len())

	list, err := h.svc.List(ctx, "alice", models.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = h.store.MemoryStore.Get(ctx, list[0].StorageKey)
	assert.NoError(t, err)
}

func TestDelete_CommittedMarkWithTransientError(t *testing.T) {
	rm := newFlakyManager()
	h := newHarness(t, func(h *harness) { h.rm = rm })
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	rm.st.set(func(st *flakyState) { st.commitThenFailMark = 1 })
	require.NoError(t, h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey))

	assert.Equal(t, 0, h.store.Len())
	_, err := h.svc.Get(ctx, res.FileID, "alice")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	stale, err := rm.Files(nil).ListStaleDeleting(ctx, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDelete_RecordRemovalFailureLeftToReclaimer(t *testing.T) {
	rm := newFlakyManager()
	h := newHarness(t, func(h *harness) { h.rm = rm })
	ctx := context.Background()
	res := h.upload(t, "alice", "a.txt", "text/plain", []byte("x"))

	rm.st.set(func(st *flakyState) { st.deleteErr = errors.New("constraint violated") })
	require.NoError(t, h.svc.Delete(ctx, res.FileID, "alice", res.DownloadKey))
	assert.Equal(t, 0, h.store.Len())

	// Hidden from readers, still present in the deleting state.
	_, err := h.svc.Get(ctx, res.FileID, "alice")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	list, err := h.svc.List(ctx, "alice", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	stale, err := rm.Files(nil).ListStaleDeleting(ctx, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, res.FileID, stale[0].ID)

	rm.st.set(func(st *flakyState) { st.deleteErr = nil })
	h.reclaimer.now = func() time.Time { return time.Now().Add(time.Hour) }
	r := h.reclaimer.RunOnce(ctx)
	assert.Equal(t, 1, r.StaleFinished)
	assert.Equal(t, 0, r.Errors)

	stale, err = rm.Files(nil).ListStaleDeleting(ctx, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
