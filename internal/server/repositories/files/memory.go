package files

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type memoryRecord struct {
	file      models.File
	changedAt time.Time
}

// MemoryRepository is an in-process Repository used when no database is
// configured and in tests. It is safe for concurrent use.
type MemoryRepository struct {
	mu    sync.RWMutex
	files map[string]*memoryRecord
	now   func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		files: make(map[string]*memoryRecord),
		now:   time.Now,
	}
}

func cloneFile(f *models.File) *models.File {
	c := *f
	c.KeyHash = append([]byte(nil), f.KeyHash...)
	c.EncryptedFileKey = append([]byte(nil), f.EncryptedFileKey...)
	c.Nonce = append([]byte(nil), f.Nonce...)
	return &c
}

func (r *MemoryRepository) Create(ctx context.Context, file *models.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[file.ID]; ok {
		return common.ErrDuplicateID
	}
	c := cloneFile(file)
	if c.Status == "" {
		c.Status = models.StatusStored
	}
	r.files[file.ID] = &memoryRecord{file: *c, changedAt: r.now()}
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.files[id]
	if !ok || rec.file.Status != models.StatusStored {
		return nil, common.ErrorNotFound
	}
	return cloneFile(&rec.file), nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string, filter models.Filter) ([]*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	result := make([]*models.File, 0)
	for _, rec := range r.files {
		if rec.file.OwnerID != ownerID || rec.file.Status != models.StatusStored {
			continue
		}
		if !filter.Matches(rec.file.ContentType) {
			continue
		}
		result = append(result, cloneFile(&rec.file))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UploadedAt.Equal(result[j].UploadedAt) {
			return result[i].UploadedAt.After(result[j].UploadedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return make([]*models.File, 0), nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *MemoryRepository) MarkDeleting(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.StatusStored, models.StatusDeleting)
}

func (r *MemoryRepository) Restore(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.StatusDeleting, models.StatusStored)
}

func (r *MemoryRepository) transition(ctx context.Context, id string, from, to models.FileStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[id]
	if !ok || rec.file.Status != from {
		return common.ErrorNotFound
	}
	rec.file.Status = to
	rec.changedAt = r.now()
	return nil
}

func (r *MemoryRepository) ListStaleDeleting(ctx context.Context, olderThan time.Time, limit int) ([]*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*memoryRecord
	for _, rec := range r.files {
		if rec.file.Status == models.StatusDeleting && rec.changedAt.Before(olderThan) {
			stale = append(stale, rec)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].changedAt.Before(stale[j].changedAt) })

	var result []*models.File
	for _, rec := range stale {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, cloneFile(&rec.file))
	}
	return result, nil
}

func (r *MemoryRepository) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s models.Stats
	for _, rec := range r.files {
		if rec.file.OwnerID == ownerID && rec.file.Status == models.StatusStored {
			s.FileCount++
			s.TotalBytes += rec.file.SizeBytes
		}
	}
	return &s, nil
}
