package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"church-portal-be/internal/storage"
)

var errSinkFull = errors.New("upload buffer full")

// sink receives upload chunks. Write returns once the backend accepted the bytes, so a slow
// backend holds the caller. Exactly one of Finalize or Discard ends a sink.
type sink interface {
	Write(ctx context.Context, p []byte) error
	Finalize(ctx context.Context) error
	Discard()
}

func openSink(ctx context.Context, store storage.ObjectStore, key, contentType string, size int64) (sink, error) {
	if streaming, ok := store.(storage.StreamingStore); ok {
		w, err := streaming.Create(ctx, key, contentType)
		if err != nil {
			return nil, fmt.Errorf("open object writer: %w", err)
		}
		return &streamSink{w: w}, nil
	}
	return &bufferSink{
		store:       store,
		key:         key,
		contentType: contentType,
		limit:       size,
		buf:         new(bytes.Buffer),
	}, nil
}

// streamSink forwards chunks to a backend writer as they arrive.
type streamSink struct {
	w storage.ObjectWriter
}

func (s *streamSink) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.w.Write(p)
	return err
}

func (s *streamSink) Finalize(_ context.Context) error {
	return s.w.Commit()
}

func (s *streamSink) Discard() {
	_ = s.w.Discard()
}

// bufferSink accumulates the object in memory for backends that need the whole body at once.
// Memory grows with the bytes received, never with the declared size, and writes past the
// declared size are refused.
type bufferSink struct {
	store       storage.ObjectStore
	key         string
	contentType string
	limit       int64
	buf         *bytes.Buffer
}

func (s *bufferSink) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if int64(s.buf.Len()+len(p)) > s.limit {
		return errSinkFull
	}
	s.buf.Write(p)
	return nil
}

func (s *bufferSink) Finalize(ctx context.Context) error {
	body := s.buf.Bytes()
	s.buf = nil
	return s.store.Put(ctx, s.key, bytes.NewReader(body), int64(len(body)), s.contentType)
}

func (s *bufferSink) Discard() {
	s.buf = nil
}
