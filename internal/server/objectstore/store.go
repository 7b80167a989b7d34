// Package objectstore persists encrypted file bytes under opaque keys.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Get when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// Store is a minimal blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrObjectNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds for missing keys.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// NewStorageKey returns a fresh object key, sharded by upload date.
func NewStorageKey(now time.Time) string {
	d := now.UTC()
	return fmt.Sprintf("files/%04d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. A call that runs out of time
// fails with common.ErrTransient instead of hanging.
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: d}
}

func (s *timeoutStore) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, common.ErrTransient) {
		return fmt.Errorf("%s timed out after %s: %w: %w", op, s.timeout, common.ErrTransient, err)
	}
	return err
}

func (s *timeoutStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.call(ctx, "put object", func(ctx context.Context) error {
		return s.next.Put(ctx, key, data, contentType)
	})
}

func (s *timeoutStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.call(ctx, "get object", func(ctx context.Context) error {
		var err error
		out, err = s.next.Get(ctx, key)
		return err
	})
	return out, err
}

func (s *timeoutStore) Delete(ctx context.Context, key string) error {
	return s.call(ctx, "delete object", func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	return s.call(ctx, "ping object store", s.next.Ping)
}
