package config

import (
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	cfg := Load()

	assert.Equal(t, 256*1024, cfg.Transfer.ChunkSize)
	assert.Equal(t, int64(25*1024*1024), cfg.Transfer.MaxBytes)
	assert.Equal(t, int64(5*1024*1024), cfg.Transfer.MaxImageBytes)
	assert.Equal(t, 5*time.Second, cfg.Report.PollInterval)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRANSFER_CHUNK_SIZE", "1024")
	t.Setenv("TRANSFER_SESSION_IDLE_TTL", "30s")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("GO_ENV", "production")

	cfg := Load()

	assert.Equal(t, 1024, cfg.Transfer.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Transfer.SessionIdleTTL)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.True(t, cfg.Storage.S3UsePathStyle)
	assert.True(t, cfg.IsProduction())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TRANSFER_CHUNK_SIZE", "lots")
	t.Setenv("REPORT_POLL_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 256*1024, cfg.Transfer.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Report.PollInterval)
}

func TestReadLimitFitsEncodedChunk(t *testing.T) {
	t.Setenv("TRANSFER_CHUNK_SIZE", "")
	t.Setenv("WS_MAX_MESSAGE_BYTES", "")
	cfg := Load()
	assert.Equal(t, int64(512*1024), cfg.Transfer.ReadLimit())

	t.Setenv("TRANSFER_CHUNK_SIZE", strconv.Itoa(1024*1024))
	cfg = Load()
	limit := cfg.Transfer.ReadLimit()
	assert.Greater(t, limit, cfg.Transfer.MaxMessageBytes)
	assert.GreaterOrEqual(t, limit, int64(base64.StdEncoding.EncodedLen(cfg.Transfer.ChunkSize)))

	t.Setenv("WS_MAX_MESSAGE_BYTES", strconv.Itoa(4*1024*1024))
	cfg = Load()
	assert.Equal(t, int64(4*1024*1024), cfg.Transfer.ReadLimit())
}
