// Package uploads hands out one-shot upload targets for product images and serves the
// stored objects back. Objects live on local disk under a single directory.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/validation"
)

const targetTTL = 15 * time.Minute

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrTooLarge       = apperr.New(apperr.KindValidation, "file is too large")
)

type FileMeta struct {
	Name        string `json:"name" validate:"required,max=255"`
	Size        int64  `json:"size" validate:"gt=0"`
	ContentType string `json:"contentType" validate:"required"`
}

type Target struct {
	UploadURL  string `json:"uploadURL"`
	ObjectPath string `json:"objectPath"`
}

type Store struct {
	log      *slog.Logger
	dir      string
	maxBytes int64
	validate *validation.Validator
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewStore(log *slog.Logger, dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		log:      log,
		dir:      dir,
		maxBytes: maxBytes,
		validate: validation.New(),
		now:      time.Now,
		pending:  map[string]time.Time{},
	}, nil
}

func (s *Store) RequestUploadTarget(_ context.Context, meta FileMeta) (Target, error) {
	if err := s.validate.Struct(meta); err != nil {
		return Target{}, err
	}
	if !strings.HasPrefix(meta.ContentType, "image/") {
		return Target{}, apperr.New(apperr.KindValidation, "contentType must be an image type")
	}
	if meta.Size > s.maxBytes {
		return Target{}, ErrTooLarge
	}

	id := uuid.NewString()
	now := s.now()
	s.mu.Lock()
	for k, exp := range s.pending {
		if now.After(exp) {
			delete(s.pending, k)
		}
	}
	s.pending[id] = now.Add(targetTTL)
	s.mu.Unlock()

	s.log.Info("upload target issued", "object_id", id, "name", meta.Name, "size", meta.Size)
	return Target{
		UploadURL:  "/api/uploads/" + id,
		ObjectPath: "/objects/uploads/" + id,
	}, nil
}

// Save stores the body for a previously issued target. Each target accepts one upload.
func (s *Store) Save(_ context.Context, id string, body io.Reader) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrObjectNotFound
	}
	s.mu.Lock()
	exp, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok || s.now().After(exp) {
		return ErrObjectNotFound
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, s.maxBytes+1))
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if n > s.maxBytes {
		return ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("store object: %w", err)
	}
	s.log.Info("object stored", "object_id", id, "bytes", n)
	return nil
}

// Open returns the stored object. The caller closes it.
func (s *Store) Open(id string) (*os.File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrObjectNotFound
	}
	f, err := os.Open(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id)
}
