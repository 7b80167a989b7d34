// Package services holds the CLI's file transfer logic on top of the API
// client: reading local files for upload and writing downloads to disk.
package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/filevault/internal/client/client"
	"github.com/dmitrijs2005/filevault/internal/client/models"
	"github.com/dmitrijs2005/filevault/internal/filex"
)

const sniffLen = 512

type TransferService interface {
	UploadFile(ctx context.Context, path, contentType string) (*models.UploadResult, error)
	DownloadFile(ctx context.Context, fileID, key, dir string) (string, error)
}

type transferService struct {
	api client.Client
}

func NewTransferService(api client.Client) TransferService {
	return &transferService{api: api}
}

// UploadFile sends the file at path. An empty contentType is guessed from the
// extension, then from the leading bytes.
func (s *transferService) UploadFile(ctx context.Context, path, contentType string) (*models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	r := bufio.NewReaderSize(f, sniffLen)
	if contentType == "" {
		contentType = detectContentType(path, r)
	}

	return s.api.Upload(ctx, r, filepath.Base(path), contentType)
}

func detectContentType(path string, r *bufio.Reader) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	head, _ := r.Peek(sniffLen)
	if len(head) == 0 {
		return ""
	}
	return http.DetectContentType(head)
}

// DownloadFile saves the file into dir under its original name, never
// overwriting an existing file, and returns the written path. A partial file
// is removed on failure.
func (s *transferService) DownloadFile(ctx context.Context, fileID, key, dir string) (string, error) {
	d, err := s.api.Download(ctx, fileID, key)
	if err != nil {
		return "", err
	}
	defer d.Body.Close()

	dir, err = filex.EnsureDir(dir)
	if err != nil {
		return "", err
	}

	out, err := filex.CreateUnique(dir, d.FileName)
	if err != nil {
		return "", err
	}
	path := out.Name()

	n, copyErr := io.Copy(out, d.Body)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if d.Size >= 0 && n != d.Size {
		_ = os.Remove(path)
		return "", fmt.Errorf("short download: got %d of %d bytes", n, d.Size)
	}

	return path, nil
}
