package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
)

// LocalStore keeps objects under a directory on the local filesystem.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Name() string {
	return "local"
}

func (s *LocalStore) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	w, err := s.Create(ctx, key, contentType)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Discard()
		return fmt.Errorf("write object: %w", err)
	}
	return w.Commit()
}

func (s *LocalStore) Create(_ context.Context, key, _ string) (ObjectWriter, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".partial-*")
	if err != nil {
		return nil, fmt.Errorf("create temp object: %w", err)
	}
	return &localWriter{file: tmp, buf: bufio.NewWriterSize(tmp, 64*1024), target: target}, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("open object: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat object: %w", err)
	}
	contentType := mime.TypeByExtension(path.Ext(target))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, ObjectInfo{Size: st.Size(), ContentType: contentType}, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// localWriter writes into a temp file next to the target and renames it on Commit, so a
// half-written upload never shows up under its final key.
type localWriter struct {
	file   *os.File
	buf    *bufio.Writer
	target string
	done   bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *localWriter) Commit() error {
	if w.done {
		return os.ErrClosed
	}
	w.done = true
	if err := w.buf.Flush(); err != nil {
		w.cleanup()
		return fmt.Errorf("flush object: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.cleanup()
		return fmt.Errorf("sync object: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(w.file.Name(), w.target); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("publish object: %w", err)
	}
	return nil
}

func (w *localWriter) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	w.cleanup()
	return nil
}

func (w *localWriter) cleanup() {
	w.file.Close()
	os.Remove(w.file.Name())
}
