package transfer

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Cursor yields an object in bounded segments. Close may be called at any point and more
// than once.
type Cursor interface {
	Next(ctx context.Context) (data []byte, done bool, err error)
	Close() error
}

type readerCursor struct {
	rc        io.ReadCloser
	chunkSize int
	eof       bool
	closeOnce sync.Once
	closeErr  error
}

func newReaderCursor(rc io.ReadCloser, chunkSize int) *readerCursor {
	return &readerCursor{rc: rc, chunkSize: chunkSize}
}

func (c *readerCursor) Next(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if c.eof {
		return nil, true, nil
	}

	buf := make([]byte, c.chunkSize)
	n, err := io.ReadFull(c.rc, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.eof = true
	case err != nil:
		return nil, false, err
	}
	if n == 0 {
		return nil, true, nil
	}
	return buf[:n], false, nil
}

func (c *readerCursor) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rc.Close()
	})
	return c.closeErr
}
