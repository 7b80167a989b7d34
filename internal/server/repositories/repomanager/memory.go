package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
)

// MemoryRepositoryManager hands out one shared in-memory repository
// regardless of the handle it is given.
type MemoryRepositoryManager struct {
	files *files.MemoryRepository
}

// NewMemoryRepositoryManager constructs an in-memory RepositoryManager.
func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{files: files.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Files(_ dbx.DBTX) files.Repository {
	return m.files
}

// RunMigrations is a no-op; there is no schema.
func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}
