// Package models defines the file metadata the CLI exchanges with the server.
package models

import (
	"io"
	"time"
)

type FileInfo struct {
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type UploadResult struct {
	FileID      string `json:"fileId"`
	DownloadKey string `json:"downloadKey"`
}

type Stats struct {
	FileCount  int64 `json:"fileCount"`
	TotalBytes int64 `json:"totalBytes"`
}

// Download is an open file body. The caller closes Body.
type Download struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}
