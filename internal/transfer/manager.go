// Package transfer moves files over the realtime channel in bounded chunks. Every upload and
// download is a short-lived session owned by exactly one connection.
package transfer

import (
	"time"

	"church-portal-be/internal/config"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/metrics"
	"church-portal-be/internal/repository/contract"
	"church-portal-be/internal/storage"

	"github.com/patrickmn/go-cache"
)

const (
	kindUpload   = "upload"
	kindDownload = "download"
)

// Options are the transfer limits. Zero values fall back to the defaults.
type Options struct {
	ChunkSize     int
	MaxBytes      int64
	MaxImageBytes int64
	IdleTTL       time.Duration
	PublicPath    string
}

func OptionsFromConfig(cfg config.TransferConfig) Options {
	return Options{
		ChunkSize:     cfg.ChunkSize,
		MaxBytes:      cfg.MaxBytes,
		MaxImageBytes: cfg.MaxImageBytes,
		IdleTTL:       cfg.SessionIdleTTL,
		PublicPath:    cfg.PublicPath,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 256 * 1024
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 25 * 1024 * 1024
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = 5 * 1024 * 1024
	}
	return o
}

// Manager owns the upload and download session arenas and the per-connection index.
type Manager struct {
	opts      Options
	publicKey string
	store     storage.ObjectStore
	files     contract.FileResourceRepository
	logger    logger.ILogger

	uploads   *cache.Cache
	downloads *cache.Cache
	index     *connIndex
}

func NewManager(opts Options, store storage.ObjectStore, files contract.FileResourceRepository, log logger.ILogger) *Manager {
	opts = opts.withDefaults()

	m := &Manager{
		opts:   opts,
		store:  store,
		files:  files,
		logger: log,
		index:  newConnIndex(),
	}
	if key, err := storage.CleanKey(opts.PublicPath); err == nil {
		m.publicKey = key
	}

	m.uploads = newArena(opts.IdleTTL)
	m.uploads.OnEvicted(func(token string, v interface{}) {
		m.releaseUpload(token, v.(*uploadSession))
	})
	m.downloads = newArena(opts.IdleTTL)
	m.downloads.OnEvicted(func(token string, v interface{}) {
		m.releaseDownload(token, v.(*downloadSession))
	})
	return m
}

// newArena returns a session cache. A zero ttl keeps sessions until they are removed.
func newArena(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		return cache.New(cache.NoExpiration, 0)
	}
	cleanup := ttl / 2
	if cleanup > time.Minute {
		cleanup = time.Minute
	}
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return cache.New(ttl, cleanup)
}

func (m *Manager) ChunkSize() int {
	return m.opts.ChunkSize
}

// ReleaseConnection ends every session owned by connID.
func (m *Manager) ReleaseConnection(connID string) {
	uploads, downloads := m.index.take(connID)
	for _, token := range uploads {
		m.uploads.Delete(token)
	}
	for _, token := range downloads {
		m.downloads.Delete(token)
	}
	if len(uploads)+len(downloads) > 0 {
		m.logger.Info("Transfer", "Released sessions of closed connection", map[string]interface{}{
			"connection_id": connID,
			"uploads":       len(uploads),
			"downloads":     len(downloads),
		})
	}
}

// OpenSessions reports how many sessions connID currently owns.
func (m *Manager) OpenSessions(connID string) (uploads, downloads int) {
	return m.index.count(connID)
}

// Flush drops every session. Used on shutdown.
func (m *Manager) Flush() {
	for token := range m.uploads.Items() {
		m.uploads.Delete(token)
	}
	for token := range m.downloads.Items() {
		m.downloads.Delete(token)
	}
}

func authorizeTenant(ident *identity.Identity, tenantID string) error {
	if ident == nil {
		return apperror.Unauthenticated("Authentication required")
	}
	if !ident.CanAccessTenant(tenantID) {
		return apperror.Forbidden("Access to this tenant is not allowed")
	}
	return nil
}

func sessionOpened(kind string) {
	metrics.SessionOpened(kind)
}

func sessionClosed(kind string) {
	metrics.SessionClosed(kind)
}
