package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/metrics"
	"church-portal-be/internal/repository/specification"
	"church-portal-be/internal/storage"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DownloadTarget names a file either by resource id or by stored path.
type DownloadTarget struct {
	FileID string `json:"fileId" validate:"omitempty,uuid"`
	Path   string `json:"path" validate:"omitempty,max=1024"`
}

type DownloadTicket struct {
	DownloadID  string `json:"downloadId"`
	ChunkSize   int    `json:"chunkSize"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType"`
}

type DownloadChunk struct {
	Done bool   `json:"done"`
	Data []byte `json:"data,omitempty"`
}

type downloadSession struct {
	mu sync.Mutex

	token       string
	connID      string
	tenantID    string
	public      bool
	size        int64
	contentType string
	maxBytes    int64
	sent        int64

	cursor Cursor
	done   bool
}

func (s *downloadSession) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		_ = s.cursor.Close()
		s.done = true
	}
}

// finish closes the cursor. Callers hold s.mu.
func (s *downloadSession) finish() {
	if !s.done {
		_ = s.cursor.Close()
		s.done = true
	}
}

func (m *Manager) InitDownload(ctx context.Context, connID string, ident *identity.Identity, target DownloadTarget) (*DownloadTicket, error) {
	file, key, public, err := m.resolveDownload(ctx, target)
	if err != nil {
		return nil, err
	}

	tenantID := ""
	if file != nil {
		tenantID = file.TenantId
	}
	if !public {
		if err := authorizeTenant(ident, tenantID); err != nil {
			return nil, err
		}
	}

	rc, info, err := m.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.NotFound("File not found")
		}
		return nil, apperror.Internal(fmt.Errorf("open object: %w", err))
	}

	size, contentType := info.Size, info.ContentType
	if file != nil {
		size, contentType = file.SizeBytes, file.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	token := uuid.NewString()
	s := &downloadSession{
		token:       token,
		connID:      connID,
		tenantID:    tenantID,
		public:      public,
		size:        size,
		contentType: contentType,
		maxBytes:    m.opts.MaxBytes,
		cursor:      newReaderCursor(rc, m.opts.ChunkSize),
	}
	m.index.addDownload(connID, token)
	m.downloads.Set(token, s, cache.DefaultExpiration)
	sessionOpened(kindDownload)

	return &DownloadTicket{
		DownloadID:  token,
		ChunkSize:   m.opts.ChunkSize,
		SizeBytes:   size,
		ContentType: contentType,
	}, nil
}

// resolveDownload finds the resource and whether it is the public object. file is nil only
// for the public object when it has no resource record.
func (m *Manager) resolveDownload(ctx context.Context, target DownloadTarget) (*entity.FileResource, string, bool, error) {
	switch {
	case target.FileID != "":
		id, err := uuid.Parse(target.FileID)
		if err != nil {
			return nil, "", false, apperror.Validation("Invalid fileId")
		}
		file, err := m.files.FindOne(ctx, specification.ByID{ID: id})
		if err != nil {
			return nil, "", false, apperror.Internal(fmt.Errorf("find file resource: %w", err))
		}
		if file == nil {
			return nil, "", false, apperror.NotFound("File not found")
		}
		return file, file.Path, m.isPublic(file.Path), nil

	case strings.TrimSpace(target.Path) != "":
		key, err := storage.CleanKey(target.Path)
		if err != nil {
			return nil, "", false, apperror.Validation("Invalid path")
		}
		public := m.isPublic(key)
		file, err := m.files.FindOne(ctx, specification.ByPath{Path: key})
		if err != nil {
			return nil, "", false, apperror.Internal(fmt.Errorf("find file resource: %w", err))
		}
		if file == nil && !public {
			return nil, "", false, apperror.NotFound("File not found")
		}
		return file, key, public, nil

	default:
		return nil, "", false, apperror.Validation("fileId or path is required")
	}
}

func (m *Manager) isPublic(key string) bool {
	return m.publicKey != "" && key == m.publicKey
}

func (m *Manager) NextChunk(ctx context.Context, connID string, ident *identity.Identity, downloadID string) (*DownloadChunk, error) {
	s, err := m.lookupDownload(connID, downloadID)
	if err != nil {
		return nil, err
	}
	if !s.public {
		if err := authorizeTenant(ident, s.tenantID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, invalidDownload()
	}

	data, done, err := s.cursor.Next(ctx)
	if err != nil {
		s.finish()
		s.mu.Unlock()
		m.downloads.Delete(downloadID)
		return nil, apperror.Internal(fmt.Errorf("read download chunk: %w", err))
	}
	if done {
		s.finish()
		s.mu.Unlock()
		m.downloads.Delete(downloadID)
		return &DownloadChunk{Done: true}, nil
	}
	if s.sent+int64(len(data)) > s.maxBytes {
		s.finish()
		s.mu.Unlock()
		m.downloads.Delete(downloadID)
		return nil, apperror.Internal(fmt.Errorf("download %s exceeded %d bytes", downloadID, s.maxBytes))
	}
	s.sent += int64(len(data))
	s.mu.Unlock()

	_ = m.downloads.Replace(downloadID, s, cache.DefaultExpiration)
	metrics.AddTransferBytes(kindDownload, len(data))

	return &DownloadChunk{Data: data}, nil
}

// CompleteDownload ends a session before the cursor is exhausted.
func (m *Manager) CompleteDownload(connID, downloadID string) error {
	if _, err := m.lookupDownload(connID, downloadID); err != nil {
		return err
	}
	m.downloads.Delete(downloadID)
	return nil
}

func (m *Manager) AbortDownload(connID, downloadID string) error {
	return m.CompleteDownload(connID, downloadID)
}

func (m *Manager) lookupDownload(connID, token string) (*downloadSession, error) {
	v, ok := m.downloads.Get(token)
	if !ok {
		return nil, invalidDownload()
	}
	s := v.(*downloadSession)
	if s.connID != connID {
		return nil, invalidDownload()
	}
	return s, nil
}

func (m *Manager) releaseDownload(token string, s *downloadSession) {
	s.release()
	m.index.removeDownload(s.connID, token)
	sessionClosed(kindDownload)
}

func invalidDownload() error {
	return apperror.Validation("Invalid downloadId")
}
