package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the store's limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// BlobStore persists uploaded files and returns their public URL.
type BlobStore interface {
	Store(ctx context.Context, folder, filename string, r io.Reader, maxBytes int64) (string, error)
	Delete(ctx context.Context, url string) error
}

// LocalStore writes blobs below a directory served at publicBaseURL.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Root is the directory blobs are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// Store copies at most maxBytes from r into folder under a random name that
// keeps filename's extension. A zero maxBytes disables the limit.
func (s *LocalStore) Store(ctx context.Context, folder, filename string, r io.Reader, maxBytes int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	folder = sanitizeFolder(folder)
	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	target := filepath.Join(dir, name)
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(target)
		return "", err
	}
	return s.baseURL + "/" + path.Join(folder, name), nil
}

// Delete removes a blob previously returned by Store. Unknown URLs are ignored.
func (s *LocalStore) Delete(_ context.Context, url string) error {
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || rel == "" || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func sanitizeFolder(folder string) string {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" || folder == "." {
		return "misc"
	}
	return folder
}
