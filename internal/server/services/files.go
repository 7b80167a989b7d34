package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	sc "github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/access"
	"github.com/dmitrijs2005/filevault/internal/server/keys"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/objectstore"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	maxListLimit      = 1000
	maxFileNameLength = 255
)

// UploadParams describes one upload. Reader is consumed up to the configured
// size limit.
type UploadParams struct {
	Reader      io.Reader
	FileName    string
	ContentType string
	OwnerID     string
}

// UploadResult carries the raw download key. It is returned exactly once and
// never stored.
type UploadResult struct {
	FileID      string
	DownloadKey string
}

// OrphanQueue receives storage keys whose bytes could not be removed inline.
// fileID names the record the bytes were uploaded for; the bytes are kept
// while that record exists.
type OrphanQueue interface {
	Enqueue(fileID, storageKey string)
}

type FileService struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	store       objectstore.Store
	gate        *access.Gate
	keygen      keys.Generator
	hasher      *keys.Hasher
	masterKey   []byte
	orphans     OrphanQueue
	config      *sc.Config
	logger      logging.Logger
	now         func() time.Time
}

func NewFileService(
	db dbx.DBTX,
	repomanager repomanager.RepositoryManager,
	store objectstore.Store,
	gate *access.Gate,
	hasher *keys.Hasher,
	masterKey []byte,
	orphans OrphanQueue,
	config *sc.Config,
	logger logging.Logger,
) *FileService {
	return &FileService{
		db:          db,
		repomanager: repomanager,
		store:       store,
		gate:        gate,
		keygen:      keys.RandomGenerator{},
		hasher:      hasher,
		masterKey:   masterKey,
		orphans:     orphans,
		config:      config,
		logger:      logger.With("module", "files"),
		now:         time.Now,
	}
}

func (s *FileService) files() files.Repository {
	return s.repomanager.Files(s.db)
}

// Upload stores the bytes first and the catalog record second, so a record
// never points at missing bytes. The raw key is returned only here.
func (s *FileService) Upload(ctx context.Context, p UploadParams) (*UploadResult, error) {
	if p.OwnerID == "" {
		return nil, common.ErrorUnauthorized
	}

	name, err := s.cleanFileName(p.FileName)
	if err != nil {
		return nil, err
	}

	contentType, err := s.cleanContentType(p.ContentType)
	if err != nil {
		return nil, err
	}

	data, err := s.readLimited(p.Reader)
	if err != nil {
		return nil, err
	}

	key, err := s.keygen.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", common.ErrorInternal, err)
	}

	id := uuid.NewString()

	sealed, err := cryptox.SealFile(data, s.masterKey, id)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", common.ErrorInternal, err)
	}

	rec := &models.File{
		ID:               id,
		OwnerID:          p.OwnerID,
		FileName:         name,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		UploadedAt:       s.now().UTC(),
		KeyHash:          s.hasher.Hash(key),
		StorageKey:       objectstore.NewStorageKey(s.now()),
		EncryptedFileKey: sealed.EncryptedKey,
		Nonce:            sealed.Nonce,
		Status:           models.StatusStored,
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.store.Put(ctx, rec.StorageKey, sealed.Ciphertext, contentType)
	})
	if err != nil {
		s.logger.Error(ctx, "store bytes failed", "file_id", id, "owner", p.OwnerID, "error", err)
		return nil, err
	}

	// A transient failure may arrive after the insert committed.
	var ambiguous bool
	err = s.withRetry(ctx, func(ctx context.Context) error {
		err := s.files().Create(ctx, rec)
		if errors.Is(err, common.ErrTransient) {
			ambiguous = true
		}
		return err
	})
	if err != nil && ambiguous {
		created, lerr := s.lookupCreated(context.WithoutCancel(ctx), rec)
		switch {
		case lerr != nil:
			s.logger.Error(ctx, "create outcome unknown", "file_id", id, "owner", p.OwnerID, "error", err, "lookup_error", lerr)
			s.queueOrphan(ctx, id, rec.StorageKey)
			return nil, err
		case created:
			s.logger.Warn(ctx, "record committed despite create error", "file_id", id, "error", err)
			err = nil
		}
	}
	if err != nil {
		s.logger.Error(ctx, "create record failed", "file_id", id, "owner", p.OwnerID, "error", err)
		s.discardBytes(ctx, id, rec.StorageKey)
		return nil, err
	}

	s.logger.Info(ctx, "file uploaded", "file_id", id, "owner", p.OwnerID, "size", rec.SizeBytes, "content_type", contentType)

	return &UploadResult{FileID: id, DownloadKey: key}, nil
}

// lookupCreated reports whether rec is in the catalog as written by this
// upload.
func (s *FileService) lookupCreated(ctx context.Context, rec *models.File) (bool, error) {
	var got *models.File
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		got, err = s.files().Get(ctx, rec.ID)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got.StorageKey == rec.StorageKey && bytes.Equal(got.KeyHash, rec.KeyHash), nil
}

// discardBytes removes bytes whose record was never created. The caller's
// context may already be done, so cleanup runs detached from cancellation.
func (s *FileService) discardBytes(ctx context.Context, fileID, storageKey string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Delete(ctx, storageKey); err != nil {
		s.logger.Warn(ctx, "remove bytes failed", "storage_key", storageKey, "error", err)
		s.queueOrphan(ctx, fileID, storageKey)
	}
}

func (s *FileService) queueOrphan(ctx context.Context, fileID, storageKey string) {
	if s.orphans == nil {
		return
	}
	s.logger.Warn(ctx, "orphaned bytes queued", "file_id", fileID, "storage_key", storageKey)
	s.orphans.Enqueue(fileID, storageKey)
}

// Download authorizes the caller and returns the decrypted content.
func (s *FileService) Download(ctx context.Context, fileID, ownerID, key string) (*models.Download, error) {
	rec, err := s.gate.Authorize(ctx, ownerID, fileID, key, access.ActionDownload)
	if err != nil {
		return nil, err
	}

	var ciphertext []byte
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		ciphertext, err = s.store.Get(ctx, rec.StorageKey)
		return err
	})
	if errors.Is(err, objectstore.ErrObjectNotFound) {
		return nil, s.missingBytes(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	plain, err := cryptox.OpenFile(&cryptox.EncryptedFile{
		Ciphertext:   ciphertext,
		EncryptedKey: rec.EncryptedFileKey,
		Nonce:        rec.Nonce,
	}, s.masterKey, rec.ID)
	if err != nil {
		s.logger.Error(ctx, "stored bytes failed to decrypt",
			"file_id", rec.ID, "owner", rec.OwnerID, "storage_key", rec.StorageKey, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrIntegrity, err)
	}

	return &models.Download{
		FileName:    rec.FileName,
		ContentType: rec.ContentType,
		Size:        int64(len(plain)),
		Content:     bytes.NewReader(plain),
	}, nil
}

// missingBytes decides between a lost race with a delete and a broken
// record. Only the latter is an integrity failure.
func (s *FileService) missingBytes(ctx context.Context, rec *models.File) error {
	_, err := s.files().Get(ctx, rec.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrorNotFound
	case err != nil:
		return err
	}

	s.logger.Error(ctx, "record has no bytes",
		"file_id", rec.ID, "owner", rec.OwnerID, "storage_key", rec.StorageKey)
	return common.ErrIntegrity
}

// Delete authorizes the caller, hides the record, removes the bytes and then
// the record. Concurrent deletes of one file produce a single winner.
func (s *FileService) Delete(ctx context.Context, fileID, ownerID, key string) error {
	rec, err := s.gate.Authorize(ctx, ownerID, fileID, key, access.ActionDelete)
	if err != nil {
		return err
	}

	var ambiguous bool
	err = s.withRetry(ctx, func(ctx context.Context) error {
		err := s.files().MarkDeleting(ctx, fileID)
		if errors.Is(err, common.ErrTransient) {
			ambiguous = true
		}
		return err
	})
	// Not found after a transient failure means the earlier attempt committed.
	if err != nil && !(ambiguous && errors.Is(err, common.ErrorNotFound)) {
		return err
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, rec.StorageKey)
	})
	if err != nil {
		s.logger.Error(ctx, "remove bytes failed", "file_id", fileID, "owner", ownerID, "storage_key", rec.StorageKey, "error", err)
		if rerr := s.files().Restore(context.WithoutCancel(ctx), fileID); rerr != nil {
			s.logger.Error(ctx, "restore after failed delete", "file_id", fileID, "error", rerr)
		}
		return err
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.files().Delete(ctx, fileID)
	})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		// The record is already invisible; the reclaimer removes it later.
		s.logger.Warn(ctx, "remove record deferred", "file_id", fileID, "error", err)
	}

	s.logger.Info(ctx, "file deleted", "file_id", fileID, "owner", ownerID)
	return nil
}

// List returns the caller's own files, newest first.
func (s *FileService) List(ctx context.Context, ownerID string, filter models.Filter) ([]*models.File, error) {
	if ownerID == "" {
		return nil, common.ErrorUnauthorized
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", common.ErrValidation)
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	var out []*models.File
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.files().ListByOwner(ctx, ownerID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns metadata of one file. Missing and foreign files are both
// reported as common.ErrorNotFound.
func (s *FileService) Get(ctx context.Context, fileID, ownerID string) (*models.File, error) {
	var rec *models.File
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.files().Get(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (s *FileService) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	if ownerID == "" {
		return nil, common.ErrorUnauthorized
	}

	var st *models.Stats
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		st, err = s.files().Stats(ctx, ownerID)
		return err
	})
	return st, err
}

func (s *FileService) readLimited(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no content", common.ErrValidation)
	}

	limit := s.config.MaxUploadSize
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", common.ErrTooLarge, limit)
	}
	return data, nil
}

// cleanFileName strips directory parts and rejects blocked extensions.
func (s *FileService) cleanFileName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%w: file name is required", common.ErrValidation)
	}
	if len(name) > maxFileNameLength {
		return "", fmt.Errorf("%w: file name too long", common.ErrValidation)
	}

	ext := strings.ToLower(path.Ext(name))
	for _, blocked := range s.config.BlockedExtensions {
		if ext != "" && ext == strings.ToLower(blocked) {
			return "", fmt.Errorf("%w: %s files are not accepted", common.ErrValidation, ext)
		}
	}
	return name, nil
}

// cleanContentType drops parameters, lowercases and checks the allow list.
func (s *FileService) cleanContentType(ct string) (string, error) {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		ct = common.DefaultContentType
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || !strings.Contains(mediaType, "/") {
		return "", fmt.Errorf("%w: bad content type %q", common.ErrValidation, ct)
	}

	if len(s.config.AllowedContentTypes) == 0 {
		return mediaType, nil
	}
	for _, pattern := range s.config.AllowedContentTypes {
		if (models.Filter{ContentType: pattern}).Matches(mediaType) {
			return mediaType, nil
		}
	}
	return "", fmt.Errorf("%w: content type %s is not accepted", common.ErrValidation, mediaType)
}
