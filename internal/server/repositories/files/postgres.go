package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

const fileColumns = `id, owner_id, file_name, content_type, size_bytes, uploaded_at,
	key_hash, storage_key, encrypted_file_key, nonce, status`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var f models.File
	var status string
	if err := s.Scan(&f.ID, &f.OwnerID, &f.FileName, &f.ContentType, &f.SizeBytes, &f.UploadedAt,
		&f.KeyHash, &f.StorageKey, &f.EncryptedFileKey, &f.Nonce, &status); err != nil {
		return nil, err
	}
	f.Status = models.FileStatus(status)
	f.UploadedAt = f.UploadedAt.UTC()
	return &f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	status := file.Status
	if status == "" {
		status = models.StatusStored
	}

	_, err := r.db.ExecContext(ctx, query,
		file.ID, file.OwnerID, file.FileName, file.ContentType, file.SizeBytes, file.UploadedAt,
		file.KeyHash, file.StorageKey, file.EncryptedFileKey, file.Nonce, string(status))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert file %s: %w", file.ID, common.ErrDuplicateID)
		}
		return wrapDBError("insert file", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1 AND status='stored'`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, wrapDBError("select file", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, filter models.Filter) ([]*models.File, error) {
	var sb strings.Builder
	args := []any{ownerID}

	sb.WriteString(`SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1 AND status='stored'`)

	if p, wild := filter.WildcardPrefix(); !wild {
		args = append(args, p)
		fmt.Fprintf(&sb, ` AND lower(content_type)=$%d`, len(args))
	} else if p != "" {
		args = append(args, escapeLike(p)+"%")
		fmt.Fprintf(&sb, ` AND lower(content_type) LIKE $%d`, len(args))
	}

	sb.WriteString(` ORDER BY uploaded_at DESC, id`)

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrapDBError("select files", err)
	}
	defer rows.Close()

	result := make([]*models.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, wrapDBError("scan file", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate files", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete file", `DELETE FROM files WHERE id=$1`, id)
}

func (r *PostgresRepository) MarkDeleting(ctx context.Context, id string) error {
	return r.execOne(ctx, "mark deleting",
		`UPDATE files SET status='deleting', status_changed_at=now() WHERE id=$1 AND status='stored'`, id)
}

func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	return r.execOne(ctx, "restore file",
		`UPDATE files SET status='stored', status_changed_at=now() WHERE id=$1 AND status='deleting'`, id)
}

// execOne runs a conditional statement that must touch exactly one row.
// Zero rows means the condition no longer held.
func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected error: %w", op, err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("%s: unexpected rows affected: %d", op, n)
	}
}

// ListStaleDeleting locks the returned rows when run inside a transaction,
// so concurrent reclaimers skip each other's work.
func (r *PostgresRepository) ListStaleDeleting(ctx context.Context, olderThan time.Time, limit int) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE status='deleting' AND status_changed_at < $1
		ORDER BY status_changed_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, wrapDBError("select stale files", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, wrapDBError("scan file", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate stale files", err)
	}
	return result, nil
}

func (r *PostgresRepository) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files WHERE owner_id=$1 AND status='stored'`

	var s models.Stats
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&s.FileCount, &s.TotalBytes); err != nil {
		return nil, wrapDBError("select stats", err)
	}
	return &s, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
