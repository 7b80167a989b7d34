// Package models defines server-side data models persisted in the database.
package models

import (
	"io"
	"time"
)

// FileStatus is the lifecycle state of a catalog record.
type FileStatus string

const (
	// StatusStored marks a fully uploaded, visible file.
	StatusStored FileStatus = "stored"
	// StatusDeleting marks a file whose delete has been committed but whose
	// bytes may still exist. Such records are invisible to readers.
	StatusDeleting FileStatus = "deleting"
)

// File is the catalog record for one stored file. The raw download key is
// never part of it; only KeyHash is.
type File struct {
	ID          string
	OwnerID     string
	FileName    string
	ContentType string
	SizeBytes   int64
	UploadedAt  time.Time

	// KeyHash is the keyed hash of the download key. Set once at creation.
	KeyHash []byte
	// StorageKey is the object-store key of the ciphertext blob.
	StorageKey string
	// EncryptedFileKey is the per-file data key wrapped by the master key.
	EncryptedFileKey []byte
	// Nonce is the AEAD nonce used to encrypt the file contents.
	Nonce []byte

	Status FileStatus
}

// Filter narrows ListByOwner results. Zero values mean "no restriction".
type Filter struct {
	// ContentType is an exact MIME type or a "type/*" wildcard.
	ContentType string
	Limit       int
	Offset      int
}

// Stats summarizes an owner's files.
type Stats struct {
	FileCount  int64
	TotalBytes int64
}

// Download is what a successful download hands to transports.
type Download struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}
