package rest

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// KeyHeader is an alternative to the key query parameter that keeps the key
// out of URLs.
const KeyHeader = "X-Download-Key"

// FileService is what the handlers need from the lifecycle service.
type FileService interface {
	Upload(ctx context.Context, p services.UploadParams) (*services.UploadResult, error)
	Download(ctx context.Context, fileID, ownerID, key string) (*models.Download, error)
	Delete(ctx context.Context, fileID, ownerID, key string) error
	List(ctx context.Context, ownerID string, filter models.Filter) ([]*models.File, error)
	Get(ctx context.Context, fileID, ownerID string) (*models.File, error)
	Stats(ctx context.Context, ownerID string) (*models.Stats, error)
}

type FileHandler struct {
	files         FileService
	maxUploadSize int64
	logger        logging.Logger
}

func NewFileHandler(files FileService, maxUploadSize int64, logger logging.Logger) *FileHandler {
	return &FileHandler{
		files:         files,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("module", "rest"),
	}
}

type uploadResponse struct {
	FileID      string `json:"fileId"`
	DownloadKey string `json:"downloadKey"`
}

type fileInfo struct {
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type statsResponse struct {
	FileCount  int64 `json:"fileCount"`
	TotalBytes int64 `json:"totalBytes"`
}

func toFileInfo(f *models.File) fileInfo {
	return fileInfo{
		FileID:      f.ID,
		FileName:    f.FileName,
		SizeBytes:   f.SizeBytes,
		ContentType: f.ContentType,
		UploadedAt:  f.UploadedAt,
	}
}

func (h *FileHandler) fail(w http.ResponseWriter, r *http.Request, err error, classifier func(error) (int, string, string)) {
	status, code, msg := classifier(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, msg)
}

func ownerFrom(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func downloadKey(r *http.Request) string {
	if k := r.Header.Get(KeyHeader); k != "" {
		return k
	}
	return r.URL.Query().Get(common.DownloadKeyParam)
}

// Upload handles POST /files (multipart: file, optional fileName and
// contentType fields).
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Leave room for multipart framing; the service enforces the exact limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeValidation, "expected multipart/form-data with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "file field is required")
		return
	}
	defer file.Close()

	name := r.FormValue("fileName")
	if name == "" {
		name = header.Filename
	}
	contentType := r.FormValue("contentType")
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}

	res, err := h.files.Upload(r.Context(), services.UploadParams{
		Reader:      file,
		FileName:    name,
		ContentType: contentType,
		OwnerID:     ownerFrom(r),
	})
	if err != nil {
		h.fail(w, r, err, classify)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, uploadResponse{FileID: res.FileID, DownloadKey: res.DownloadKey})
}

// List handles GET /files. An owner parameter other than the caller is
// refused; there is no cross-user listing.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := ownerFrom(r)

	if o := q.Get("owner"); o != "" && o != owner {
		writeError(w, http.StatusForbidden, CodeAccessDenied, "listing other users' files is not allowed")
		return
	}

	filter := models.Filter{ContentType: q.Get("type")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "offset must be a non-negative integer")
		return
	}

	list, err := h.files.List(r.Context(), owner, filter)
	if err != nil {
		h.fail(w, r, err, classify)
		return
	}

	out := make([]fileInfo, 0, len(list))
	for _, f := range list {
		out = append(out, toFileInfo(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("bad integer")
	}
	return n, nil
}

// Stats handles GET /files/stats.
func (h *FileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.files.Stats(r.Context(), ownerFrom(r))
	if err != nil {
		h.fail(w, r, err, classify)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{FileCount: st.FileCount, TotalBytes: st.TotalBytes})
}

// Get handles GET /files/{fileID}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.Get(r.Context(), chi.URLParam(r, "fileID"), ownerFrom(r))
	if err != nil {
		h.fail(w, r, err, classify)
		return
	}
	writeJSON(w, http.StatusOK, toFileInfo(f))
}

// Content handles GET /files/{fileID}/content.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	d, err := h.files.Download(r.Context(), chi.URLParam(r, "fileID"), ownerFrom(r), downloadKey(r))
	if err != nil {
		h.fail(w, r, err, classifyKeyed)
		return
	}

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.Header().Set("Content-Disposition", contentDisposition(d.FileName))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, d.Content); err != nil {
		h.logger.Warn(r.Context(), "download interrupted", "path", r.URL.Path, "error", err)
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// contentDisposition returns attachment; filename="name". Names outside
// printable ASCII use the RFC 2231 filename* form instead.
func contentDisposition(name string) string {
	for _, c := range name {
		if c < 0x20 || c > 0x7e {
			return mime.FormatMediaType("attachment", map[string]string{"filename": name})
		}
	}
	return `attachment; filename="` + quoteEscaper.Replace(name) + `"`
}

// Delete handles DELETE /files/{fileID}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), chi.URLParam(r, "fileID"), ownerFrom(r), downloadKey(r)); err != nil {
		h.fail(w, r, err, classifyKeyed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
