package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/repository/specification"
	"church-portal-be/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	mu    sync.Mutex
	items map[uuid.UUID]*entity.FileResource
	fail  error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{items: make(map[uuid.UUID]*entity.FileResource)}
}

func (f *fakeFiles) Create(_ context.Context, file *entity.FileResource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	file.Id = uuid.New()
	file.CreatedAt = time.Now()
	cp := *file
	f.items[file.Id] = &cp
	return nil
}

func (f *fakeFiles) FindOne(_ context.Context, specs ...specification.Specification) (*entity.FileResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		match := true
		for _, spec := range specs {
			switch s := spec.(type) {
			case specification.ByID:
				match = match && item.Id == s.ID
			case specification.ByPath:
				match = match && item.Path == s.Path
			}
		}
		if match {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

// memStore is a non-streaming backend, like the S3 and Azure stores.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Name() string { return "mem" }

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), storage.ObjectInfo{Size: int64(len(body))}, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

var (
	memberT1 = &identity.Identity{SubjectKind: identity.SubjectUser, SubjectID: "u-1", Role: identity.RoleMember, TenantID: "t-1"}
	memberT2 = &identity.Identity{SubjectKind: identity.SubjectUser, SubjectID: "u-2", Role: identity.RoleMember, TenantID: "t-2"}
	superAdm = &identity.Identity{SubjectKind: identity.SubjectUser, SubjectID: "u-9", Role: identity.RoleSuperAdmin}
)

type fixture struct {
	m     *Manager
	files *fakeFiles
	root  string
	store storage.ObjectStore
}

func newLocalFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStore(root)
	require.NoError(t, err)
	files := newFakeFiles()
	return &fixture{m: NewManager(opts, store, files, logger.NewNopLogger()), files: files, root: root, store: store}
}

func testOptions() Options {
	return Options{ChunkSize: 600, MaxBytes: 4096, MaxImageBytes: 1024, PublicPath: "/public/app-logo.png"}
}

func requireCode(t *testing.T, err error, code apperror.Code, message string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr), "expected apperror, got %v", err)
	assert.Equal(t, code, appErr.Code)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func openUpload(t *testing.T, f *fixture, conn string, size int64) string {
	t.Helper()
	ticket, err := f.m.InitUpload(context.Background(), conn, memberT1, UploadTarget{
		Kind: "file", TenantID: "t-1", SizeBytes: size, ContentType: "text/plain", OriginalName: "notes.TXT",
	})
	require.NoError(t, err)
	return ticket.UploadID
}

func TestUploadCompletesWhenAllBytesArrive(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	id := openUpload(t, f, "c1", 1000)

	ack, err := f.m.Chunk(ctx, "c1", id, bytes.Repeat([]byte("a"), 600))
	require.NoError(t, err)
	assert.Equal(t, int64(600), ack.ReceivedBytes)

	ack, err = f.m.Chunk(ctx, "c1", id, bytes.Repeat([]byte("b"), 400))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), ack.ReceivedBytes)

	desc, err := f.m.Complete(ctx, "c1", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), desc.SizeBytes)
	assert.Equal(t, "t-1", desc.TenantID)
	assert.Equal(t, "text/plain", desc.ContentType)
	assert.Regexp(t, `^tenants/t-1/file/[0-9a-f-]{36}\.txt$`, desc.Path)

	body, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(desc.Path)))
	require.NoError(t, err)
	assert.Len(t, body, 1000)

	_, err = f.m.Chunk(ctx, "c1", id, []byte("x"))
	requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
	up, _ := f.m.OpenSessions("c1")
	assert.Zero(t, up)
}

func TestCompleteRejectsIncompleteUpload(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	id := openUpload(t, f, "c1", 1000)

	_, err := f.m.Chunk(ctx, "c1", id, make([]byte, 600))
	require.NoError(t, err)

	_, err = f.m.Complete(ctx, "c1", id)
	requireCode(t, err, apperror.CodeValidation, "Incomplete upload")

	// The session survives and can still be finished.
	_, err = f.m.Chunk(ctx, "c1", id, make([]byte, 400))
	require.NoError(t, err)
	_, err = f.m.Complete(ctx, "c1", id)
	require.NoError(t, err)
}

func TestChunkByteAccounting(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	id := openUpload(t, f, "c1", 1000)

	_, err := f.m.Chunk(ctx, "c1", id, nil)
	requireCode(t, err, apperror.CodeValidation, "Chunk is empty")

	_, err = f.m.Chunk(ctx, "c1", id, make([]byte, 601))
	requireCode(t, err, apperror.CodeValidation, "Chunk exceeds chunk size")

	_, err = f.m.Chunk(ctx, "c1", id, make([]byte, 600))
	require.NoError(t, err)

	_, err = f.m.Chunk(ctx, "c1", id, make([]byte, 401))
	requireCode(t, err, apperror.CodeValidation, "Chunk exceeds declared size")

	ack, err := f.m.Chunk(ctx, "c1", id, make([]byte, 400))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), ack.ReceivedBytes)
}

func TestSessionsAreIsolatedPerConnection(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	id := openUpload(t, f, "c1", 10)

	_, err := f.m.Chunk(ctx, "c2", id, []byte("0123456789"))
	requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
	_, err = f.m.Complete(ctx, "c2", id)
	requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
	requireCode(t, f.m.Abort("c2", id), apperror.CodeValidation, "Invalid uploadId")

	ack, err := f.m.Chunk(ctx, "c1", id, []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), ack.ReceivedBytes)
}

func TestAbortDiscardsPartialObject(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	id := openUpload(t, f, "c1", 1000)
	_, err := f.m.Chunk(ctx, "c1", id, make([]byte, 600))
	require.NoError(t, err)

	require.NoError(t, f.m.Abort("c1", id))

	_, err = f.m.Chunk(ctx, "c1", id, make([]byte, 10))
	requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
	assert.Empty(t, listFiles(t, f.root))
}

func TestReleaseConnectionEndsAllSessions(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()

	up1 := openUpload(t, f, "c1", 100)
	up2 := openUpload(t, f, "c1", 100)
	other := openUpload(t, f, "c2", 100)
	_, err := f.m.Chunk(ctx, "c1", up1, make([]byte, 50))
	require.NoError(t, err)

	require.NoError(t, f.store.Put(ctx, "public/app-logo.png", bytes.NewReader([]byte("logo")), 4, "image/png"))
	dl, err := f.m.InitDownload(ctx, "c1", nil, DownloadTarget{Path: "public/app-logo.png"})
	require.NoError(t, err)

	uploads, downloads := f.m.OpenSessions("c1")
	assert.Equal(t, 2, uploads)
	assert.Equal(t, 1, downloads)

	f.m.ReleaseConnection("c1")

	uploads, downloads = f.m.OpenSessions("c1")
	assert.Zero(t, uploads)
	assert.Zero(t, downloads)
	for _, id := range []string{up1, up2} {
		_, err := f.m.Chunk(ctx, "c1", id, []byte("x"))
		requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
	}
	_, err = f.m.NextChunk(ctx, "c1", nil, dl.DownloadID)
	requireCode(t, err, apperror.CodeValidation, "Invalid downloadId")

	_, err = f.m.Chunk(ctx, "c2", other, []byte("x"))
	assert.NoError(t, err)
}

func TestIdleSessionsExpire(t *testing.T) {
	opts := testOptions()
	opts.IdleTTL = 50 * time.Millisecond
	f := newLocalFixture(t, opts)
	id := openUpload(t, f, "c1", 100)

	assert.Eventually(t, func() bool {
		up, _ := f.m.OpenSessions("c1")
		return up == 0
	}, 5*time.Second, 50*time.Millisecond)

	_, err := f.m.Chunk(context.Background(), "c1", id, []byte("x"))
	requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
	assert.Empty(t, listFiles(t, f.root))
}

func TestInitUploadValidation(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()

	_, err := f.m.InitUpload(ctx, "c1", nil, UploadTarget{Kind: "file", SizeBytes: 10})
	requireCode(t, err, apperror.CodeUnauthenticated, "")

	_, err = f.m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: 0})
	requireCode(t, err, apperror.CodeValidation, "")

	_, err = f.m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: 4097})
	requireCode(t, err, apperror.CodeValidation, "File too large")

	_, err = f.m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "cover", SizeBytes: 10, ContentType: "application/pdf"})
	requireCode(t, err, apperror.CodeValidation, "Cover uploads must be images")

	_, err = f.m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "cover", SizeBytes: 1025, ContentType: "image/png"})
	requireCode(t, err, apperror.CodeValidation, "File too large")

	_, err = f.m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "file", TenantID: "t-2", SizeBytes: 10})
	requireCode(t, err, apperror.CodeForbidden, "")

	ticket, err := f.m.InitUpload(ctx, "c1", superAdm, UploadTarget{Kind: "cover", TenantID: "t-2", SizeBytes: 1024, ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, int64(1024), ticket.MaxBytes)
	assert.Equal(t, 600, ticket.ChunkSize)
}

func TestBufferedSinkUploadsOnComplete(t *testing.T) {
	store := newMemStore()
	files := newFakeFiles()
	m := NewManager(testOptions(), store, files, logger.NewNopLogger())
	ctx := context.Background()

	ticket, err := m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: 5, ContentType: "text/plain"})
	require.NoError(t, err)
	_, err = m.Chunk(ctx, "c1", ticket.UploadID, []byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, store.objects)

	desc, err := m.Complete(ctx, "c1", ticket.UploadID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), store.objects[desc.Path])

	stored, _ := files.FindOne(ctx, specification.ByPath{Path: desc.Path})
	require.NotNil(t, stored)
	assert.Equal(t, "mem", stored.Backend)
	assert.Equal(t, "u-1", stored.OwnerId)
}

func TestCompleteRemovesObjectWhenRecordFails(t *testing.T) {
	store := newMemStore()
	files := newFakeFiles()
	files.fail = errors.New("insert failed")
	m := NewManager(testOptions(), store, files, logger.NewNopLogger())
	ctx := context.Background()

	ticket, err := m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: 2})
	require.NoError(t, err)
	_, err = m.Chunk(ctx, "c1", ticket.UploadID, []byte("hi"))
	require.NoError(t, err)

	_, err = m.Complete(ctx, "c1", ticket.UploadID)
	requireCode(t, err, apperror.CodeInternal, "")
	assert.Empty(t, store.objects)

	_, err = m.Complete(ctx, "c1", ticket.UploadID)
	requireCode(t, err, apperror.CodeValidation, "Invalid uploadId")
}

func uploadFile(t *testing.T, f *fixture, body []byte) *FileDescriptor {
	t.Helper()
	ctx := context.Background()
	id := openUpload(t, f, "uploader", int64(len(body)))
	for off := 0; off < len(body); off += 600 {
		end := off + 600
		if end > len(body) {
			end = len(body)
		}
		_, err := f.m.Chunk(ctx, "uploader", id, body[off:end])
		require.NoError(t, err)
	}
	desc, err := f.m.Complete(ctx, "uploader", id)
	require.NoError(t, err)
	return desc
}

func drain(t *testing.T, m *Manager, conn string, ident *identity.Identity, id string) []byte {
	t.Helper()
	var out []byte
	for i := 0; i < 100; i++ {
		chunk, err := m.NextChunk(context.Background(), conn, ident, id)
		require.NoError(t, err)
		if chunk.Done {
			return out
		}
		out = append(out, chunk.Data...)
	}
	t.Fatal("download never finished")
	return nil
}

func TestDownloadStreamsFileInChunks(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	body := bytes.Repeat([]byte("0123456789"), 150)
	desc := uploadFile(t, f, body)

	ticket, err := f.m.InitDownload(context.Background(), "c1", memberT1, DownloadTarget{FileID: desc.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), ticket.SizeBytes)
	assert.Equal(t, "text/plain", ticket.ContentType)

	assert.Equal(t, body, drain(t, f.m, "c1", memberT1, ticket.DownloadID))

	_, downloads := f.m.OpenSessions("c1")
	assert.Zero(t, downloads)
	_, err = f.m.NextChunk(context.Background(), "c1", memberT1, ticket.DownloadID)
	requireCode(t, err, apperror.CodeValidation, "Invalid downloadId")
}

func TestDownloadAuthorization(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	desc := uploadFile(t, f, []byte("secret"))

	_, err := f.m.InitDownload(ctx, "c1", nil, DownloadTarget{FileID: desc.ID})
	requireCode(t, err, apperror.CodeUnauthenticated, "")

	_, err = f.m.InitDownload(ctx, "c1", memberT2, DownloadTarget{Path: desc.Path})
	requireCode(t, err, apperror.CodeForbidden, "")

	_, err = f.m.InitDownload(ctx, "c1", memberT1, DownloadTarget{FileID: uuid.NewString()})
	requireCode(t, err, apperror.CodeNotFound, "")

	_, err = f.m.InitDownload(ctx, "c1", memberT1, DownloadTarget{})
	requireCode(t, err, apperror.CodeValidation, "")

	ticket, err := f.m.InitDownload(ctx, "c1", memberT1, DownloadTarget{FileID: desc.ID})
	require.NoError(t, err)

	// Identity is checked again on every chunk.
	_, err = f.m.NextChunk(ctx, "c1", nil, ticket.DownloadID)
	requireCode(t, err, apperror.CodeUnauthenticated, "")
	_, err = f.m.NextChunk(ctx, "c2", memberT1, ticket.DownloadID)
	requireCode(t, err, apperror.CodeValidation, "Invalid downloadId")

	require.NoError(t, f.m.CompleteDownload("c1", ticket.DownloadID))
	_, err = f.m.NextChunk(ctx, "c1", memberT1, ticket.DownloadID)
	requireCode(t, err, apperror.CodeValidation, "Invalid downloadId")
}

func TestPublicPathNeedsNoIdentity(t *testing.T) {
	f := newLocalFixture(t, testOptions())
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "public/app-logo.png", bytes.NewReader([]byte("logo")), 4, "image/png"))
	require.NoError(t, f.store.Put(ctx, "public/other.png", bytes.NewReader([]byte("x")), 1, "image/png"))

	ticket, err := f.m.InitDownload(ctx, "anon", nil, DownloadTarget{Path: "/public/./app-logo.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", ticket.ContentType)
	assert.Equal(t, []byte("logo"), drain(t, f.m, "anon", nil, ticket.DownloadID))

	_, err = f.m.InitDownload(ctx, "anon", nil, DownloadTarget{Path: "public/other.png"})
	requireCode(t, err, apperror.CodeNotFound, "")
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			out = append(out, p)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestBufferedSinkReservesNothingUpFront(t *testing.T) {
	opts := testOptions()
	opts.MaxBytes = 25 * 1024 * 1024
	m := NewManager(opts, newMemStore(), newFakeFiles(), logger.NewNopLogger())
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 8; i++ {
		ticket, err := m.InitUpload(ctx, "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: opts.MaxBytes})
		require.NoError(t, err)
		tokens = append(tokens, ticket.UploadID)
	}

	for _, token := range tokens {
		v, ok := m.uploads.Get(token)
		require.True(t, ok)
		sk, ok := v.(*uploadSession).sink.(*bufferSink)
		require.True(t, ok)
		assert.Zero(t, sk.buf.Cap())
	}

	_, err := m.Chunk(ctx, "c1", tokens[0], []byte("hello"))
	require.NoError(t, err)
	v, _ := m.uploads.Get(tokens[0])
	assert.Less(t, v.(*uploadSession).sink.(*bufferSink).buf.Cap(), 1024)
}

func TestDownloadStopsAtByteCeiling(t *testing.T) {
	store := newMemStore()
	m := NewManager(testOptions(), store, newFakeFiles(), logger.NewNopLogger())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "public/app-logo.png", bytes.NewReader(make([]byte, 5000)), 5000, "image/png"))

	ticket, err := m.InitDownload(ctx, "c1", nil, DownloadTarget{Path: "public/app-logo.png"})
	require.NoError(t, err)

	var sent int
	for i := 0; i < 6; i++ {
		chunk, err := m.NextChunk(ctx, "c1", nil, ticket.DownloadID)
		require.NoError(t, err)
		require.False(t, chunk.Done)
		sent += len(chunk.Data)
	}
	assert.Equal(t, 3600, sent)

	_, err = m.NextChunk(ctx, "c1", nil, ticket.DownloadID)
	requireCode(t, err, apperror.CodeInternal, "")

	_, err = m.NextChunk(ctx, "c1", nil, ticket.DownloadID)
	requireCode(t, err, apperror.CodeValidation, "Invalid downloadId")
	_, downloads := m.OpenSessions("c1")
	assert.Zero(t, downloads)
}

// gatedStore is a streaming backend whose writes wait until the test opens the gate.
type gatedStore struct {
	*memStore
	entered chan struct{}
	gate    chan struct{}

	mu        sync.Mutex
	discarded bool
}

func newGatedStore() *gatedStore {
	return &gatedStore{memStore: newMemStore(), entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (s *gatedStore) Create(_ context.Context, key, _ string) (storage.ObjectWriter, error) {
	return &gatedWriter{store: s, key: key}, nil
}

func (s *gatedStore) wasDiscarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

type gatedWriter struct {
	store *gatedStore
	key   string
	buf   bytes.Buffer
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	w.store.entered <- struct{}{}
	<-w.store.gate
	return w.buf.Write(p)
}

func (w *gatedWriter) Commit() error {
	return w.store.Put(context.Background(), w.key, &w.buf, int64(w.buf.Len()), "")
}

func (w *gatedWriter) Discard() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.discarded = true
	return nil
}

type chunkResult struct {
	ack *ChunkAck
	err error
}

func startChunk(m *Manager, conn, id string, data []byte) <-chan chunkResult {
	out := make(chan chunkResult, 1)
	go func() {
		ack, err := m.Chunk(context.Background(), conn, id, data)
		out <- chunkResult{ack: ack, err: err}
	}()
	return out
}

func TestChunkWaitsForBackend(t *testing.T) {
	store := newGatedStore()
	m := NewManager(testOptions(), store, newFakeFiles(), logger.NewNopLogger())
	ticket, err := m.InitUpload(context.Background(), "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: 10})
	require.NoError(t, err)

	result := startChunk(m, "c1", ticket.UploadID, []byte("01234"))
	<-store.entered

	select {
	case <-result:
		t.Fatal("chunk answered before the backend accepted it")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.gate)
	res := <-result
	require.NoError(t, res.err)
	assert.Equal(t, int64(5), res.ack.ReceivedBytes)

	// The next chunk sees the bytes the first one accounted for.
	res = <-startChunk(m, "c1", ticket.UploadID, []byte("56789"))
	require.NoError(t, res.err)
	assert.Equal(t, int64(10), res.ack.ReceivedBytes)
}

func TestAbortDoesNotWaitForStalledChunk(t *testing.T) {
	store := newGatedStore()
	m := NewManager(testOptions(), store, newFakeFiles(), logger.NewNopLogger())
	ticket, err := m.InitUpload(context.Background(), "c1", memberT1, UploadTarget{Kind: "file", SizeBytes: 10})
	require.NoError(t, err)

	result := startChunk(m, "c1", ticket.UploadID, []byte("01234"))
	<-store.entered

	aborted := make(chan error, 1)
	go func() { aborted <- m.Abort("c1", ticket.UploadID) }()
	select {
	case err := <-aborted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("abort blocked behind the stalled write")
	}
	up, _ := m.OpenSessions("c1")
	assert.Zero(t, up)
	assert.False(t, store.wasDiscarded())

	close(store.gate)
	res := <-result
	requireCode(t, res.err, apperror.CodeValidation, "Invalid uploadId")
	assert.True(t, store.wasDiscarded())
	assert.Empty(t, store.objects)
}
