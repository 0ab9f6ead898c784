package transfer

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

type UploadTarget struct {
	Kind         string `json:"kind" validate:"required,oneof=file cover"`
	TenantID     string `json:"tenantId" validate:"omitempty,max=64"`
	SizeBytes    int64  `json:"sizeBytes" validate:"required,gt=0"`
	ContentType  string `json:"contentType" validate:"omitempty,max=100"`
	OriginalName string `json:"originalName" validate:"omitempty,max=255"`
}

type UploadTicket struct {
	UploadID  string `json:"uploadId"`
	ChunkSize int    `json:"chunkSize"`
	MaxBytes  int64  `json:"maxBytes"`
}

type ChunkAck struct {
	ReceivedBytes int64 `json:"receivedBytes"`
}

type FileDescriptor struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Kind         string    `json:"kind"`
	Path         string    `json:"path"`
	OriginalName string    `json:"originalName,omitempty"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}

func NewFileDescriptor(f *entity.FileResource) *FileDescriptor {
	return &FileDescriptor{
		ID:           f.Id.String(),
		TenantID:     f.TenantId,
		Kind:         f.Kind,
		Path:         f.Path,
		OriginalName: f.OriginalName,
		ContentType:  f.ContentType,
		SizeBytes:    f.SizeBytes,
		CreatedAt:    f.CreatedAt,
	}
}

type uploadSession struct {
	// writeMu serializes sink access between chunks and completion. mu guards the
	// counters and flags below and is never held across a backend call.
	writeMu sync.Mutex
	mu      sync.Mutex

	token        string
	connID       string
	ownerID      string
	tenantID     string
	kind         string
	key          string
	contentType  string
	originalName string
	size         int64
	maxBytes     int64
	received     int64

	sink    sink
	done    bool
	writing bool
}

// release ends the session without waiting for an in-flight write. When a write is in
// progress the writer discards the sink once the backend returns.
func (s *uploadSession) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if !s.writing {
		s.sink.Discard()
	}
}

func (m *Manager) InitUpload(ctx context.Context, connID string, ident *identity.Identity, target UploadTarget) (*UploadTicket, error) {
	if ident == nil {
		return nil, apperror.Unauthenticated("Authentication required")
	}

	contentType := strings.ToLower(strings.TrimSpace(target.ContentType))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	maxBytes := m.opts.MaxBytes
	switch target.Kind {
	case entity.FileKindGeneral:
	case entity.FileKindCover:
		if !strings.HasPrefix(contentType, "image/") {
			return nil, apperror.Validation("Cover uploads must be images")
		}
		maxBytes = m.opts.MaxImageBytes
	default:
		return nil, apperror.Validation(fmt.Sprintf("Unsupported upload kind: %s", target.Kind))
	}

	if target.SizeBytes <= 0 {
		return nil, apperror.Validation("sizeBytes must be positive")
	}
	if target.SizeBytes > maxBytes {
		return nil, apperror.Validation("File too large").WithDetails(map[string]interface{}{
			"sizeBytes": target.SizeBytes,
			"maxBytes":  maxBytes,
		})
	}

	tenantID := target.TenantID
	if tenantID == "" {
		tenantID = ident.TenantID
	}
	if tenantID == "" {
		return nil, apperror.Validation("tenantId is required")
	}
	if err := authorizeTenant(ident, tenantID); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	key := objectKey(tenantID, target.Kind, target.OriginalName)

	sk, err := openSink(ctx, m.store, key, contentType, target.SizeBytes)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	s := &uploadSession{
		token:        token,
		connID:       connID,
		ownerID:      ident.SubjectID,
		tenantID:     tenantID,
		kind:         target.Kind,
		key:          key,
		contentType:  contentType,
		originalName: target.OriginalName,
		size:         target.SizeBytes,
		maxBytes:     maxBytes,
		sink:         sk,
	}
	m.index.addUpload(connID, token)
	m.uploads.Set(token, s, cache.DefaultExpiration)
	sessionOpened(kindUpload)

	m.logger.Debug("Transfer", "Upload session opened", map[string]interface{}{
		"upload_id":     token,
		"connection_id": connID,
		"tenant_id":     tenantID,
		"size_bytes":    target.SizeBytes,
	})

	return &UploadTicket{
		UploadID:  token,
		ChunkSize: m.opts.ChunkSize,
		MaxBytes:  maxBytes,
	}, nil
}

func (m *Manager) Chunk(ctx context.Context, connID, uploadID string, data []byte) (*ChunkAck, error) {
	s, err := m.lookupUpload(connID, uploadID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperror.Validation("Chunk is empty")
	}
	if len(data) > m.opts.ChunkSize {
		return nil, apperror.Validation("Chunk exceeds chunk size").WithDetails(map[string]interface{}{
			"chunkSize": m.opts.ChunkSize,
		})
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, invalidUpload()
	}
	next := s.received + int64(len(data))
	if next > s.size || next > s.maxBytes {
		received := s.received
		s.mu.Unlock()
		return nil, apperror.Validation("Chunk exceeds declared size").WithDetails(map[string]interface{}{
			"receivedBytes": received,
			"sizeBytes":     s.size,
		})
	}
	s.writing = true
	s.mu.Unlock()

	writeErr := s.sink.Write(ctx, data)

	s.mu.Lock()
	s.writing = false
	if s.done {
		// The session ended while the backend held the write.
		s.mu.Unlock()
		s.sink.Discard()
		return nil, invalidUpload()
	}
	if writeErr != nil {
		s.done = true
		s.mu.Unlock()
		s.sink.Discard()
		m.uploads.Delete(uploadID)
		return nil, apperror.Internal(fmt.Errorf("write upload chunk: %w", writeErr))
	}
	s.received = next
	s.mu.Unlock()

	// Refresh the idle deadline. Replace is a no-op when the session was removed meanwhile.
	_ = m.uploads.Replace(uploadID, s, cache.DefaultExpiration)
	metrics.AddTransferBytes(kindUpload, len(data))

	return &ChunkAck{ReceivedBytes: next}, nil
}

func (m *Manager) Complete(ctx context.Context, connID, uploadID string) (*FileDescriptor, error) {
	s, err := m.lookupUpload(connID, uploadID)
	if err != nil {
		return nil, err
	}

	file, err := m.finishUpload(ctx, s)
	if s.isDone() {
		m.uploads.Delete(uploadID)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("Transfer", "Upload completed", map[string]interface{}{
		"upload_id":  uploadID,
		"file_id":    file.Id.String(),
		"tenant_id":  file.TenantId,
		"size_bytes": file.SizeBytes,
	})
	return NewFileDescriptor(file), nil
}

func (m *Manager) finishUpload(ctx context.Context, s *uploadSession) (*entity.FileResource, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, invalidUpload()
	}
	if s.received != s.size {
		received := s.received
		s.mu.Unlock()
		return nil, apperror.Validation("Incomplete upload").WithDetails(map[string]interface{}{
			"receivedBytes": received,
			"sizeBytes":     s.size,
		})
	}
	// Once done is set the session fields no longer change and release leaves the sink alone.
	s.done = true
	s.mu.Unlock()

	if err := s.sink.Finalize(ctx); err != nil {
		return nil, apperror.Internal(fmt.Errorf("finalize upload: %w", err))
	}

	file := &entity.FileResource{
		TenantId:     s.tenantID,
		OwnerId:      s.ownerID,
		Kind:         s.kind,
		Path:         s.key,
		OriginalName: s.originalName,
		ContentType:  s.contentType,
		SizeBytes:    s.received,
		Backend:      m.store.Name(),
	}
	if err := m.files.Create(ctx, file); err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), s.key); delErr != nil {
			m.logger.Warn("Transfer", "Failed to remove orphaned object", map[string]interface{}{
				"key":   s.key,
				"error": delErr,
			})
		}
		return nil, apperror.Internal(fmt.Errorf("record file resource: %w", err))
	}
	return file, nil
}

// Abort removes the session whatever its progress. Unknown tokens are still reported so
// callers cannot discover other connections' sessions.
func (m *Manager) Abort(connID, uploadID string) error {
	if _, err := m.lookupUpload(connID, uploadID); err != nil {
		return err
	}
	m.uploads.Delete(uploadID)
	return nil
}

func (m *Manager) lookupUpload(connID, token string) (*uploadSession, error) {
	v, ok := m.uploads.Get(token)
	if !ok {
		return nil, invalidUpload()
	}
	s := v.(*uploadSession)
	if s.connID != connID {
		return nil, invalidUpload()
	}
	return s, nil
}

func (m *Manager) releaseUpload(token string, s *uploadSession) {
	s.release()
	m.index.removeUpload(s.connID, token)
	sessionClosed(kindUpload)
}

func (s *uploadSession) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func invalidUpload() error {
	return apperror.Validation("Invalid uploadId")
}

// objectKey places an upload under its tenant and kind with a random name.
func objectKey(tenantID, kind, originalName string) string {
	ext := strings.ToLower(path.Ext(originalName))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return path.Join("tenants", sanitizeSegment(tenantID), kind, uuid.NewString()+ext)
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
