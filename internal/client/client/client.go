package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filevault/internal/client/models"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/netx"
	"github.com/sethvargo/go-retry"
)

// KeyHeader carries the download key so that it stays out of URLs and
// proxy logs.
const KeyHeader = "X-Download-Key"

const (
	defaultRetries   = 3
	defaultRetryBase = 200 * time.Millisecond
)

// Client is the API surface the CLI depends on.
type Client interface {
	Upload(ctx context.Context, r io.Reader, fileName, contentType string) (*models.UploadResult, error)
	List(ctx context.Context, contentType string) ([]models.FileInfo, error)
	Get(ctx context.Context, fileID string) (*models.FileInfo, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Download(ctx context.Context, fileID, key string) (*models.Download, error)
	Delete(ctx context.Context, fileID, key string) error
}

type HTTPClient struct {
	baseURL   string
	token     string
	http      *http.Client
	retries   uint64
	retryBase time.Duration
}

func NewHTTPClient(addr, token string, timeout time.Duration) (*HTTPClient, error) {
	base, err := netx.BaseURL(addr)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		baseURL:   base,
		token:     token,
		http:      &http.Client{Timeout: timeout},
		retries:   defaultRetries,
		retryBase: defaultRetryBase,
	}, nil
}

func (c *HTTPClient) filesURL(segments ...string) string {
	return netx.Join(c.baseURL, append([]string{"api", "v1", "files"}, segments...)...)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// getJSON performs an idempotent GET, retrying while the server is
// unavailable, and decodes the body into out.
func (c *HTTPClient) getJSON(ctx context.Context, u string, out any) error {
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode body: %v", ErrUnexpectedStatus, err)
		}
		return nil
	})
}

// Upload streams r as a multipart form. The body is not buffered, so uploads
// are never retried.
func (c *HTTPClient) Upload(ctx context.Context, r io.Reader, fileName, contentType string) (*models.UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, r, fileName, contentType)
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, c.filesURL(), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrUnexpectedStatus, err)
	}
	return &res, nil
}

func writeUploadForm(mw *multipart.Writer, r io.Reader, fileName, contentType string) error {
	if err := mw.WriteField("fileName", fileName); err != nil {
		return err
	}
	if contentType != "" {
		if err := mw.WriteField("contentType", contentType); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

func (c *HTTPClient) List(ctx context.Context, contentType string) ([]models.FileInfo, error) {
	u := c.filesURL()
	if contentType != "" {
		u += "?" + url.Values{"type": {contentType}}.Encode()
	}

	var out []models.FileInfo
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Get(ctx context.Context, fileID string) (*models.FileInfo, error) {
	var out models.FileInfo
	if err := c.getJSON(ctx, c.filesURL(fileID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*models.Stats, error) {
	var out models.Stats
	if err := c.getJSON(ctx, c.filesURL("stats"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download opens the file body. The caller must close it.
func (c *HTTPClient) Download(ctx context.Context, fileID, key string) (*models.Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.filesURL(fileID, "content"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(KeyHeader, key)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	d := &models.Download{
		FileName:    fileID,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        -1,
		Body:        resp.Body,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		d.FileName = params["filename"]
	}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		d.Size = n
	}
	return d, nil
}

func (c *HTTPClient) Delete(ctx context.Context, fileID, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.filesURL(fileID), nil)
	if err != nil {
		return err
	}
	req.Header.Set(KeyHeader, key)

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// IsDenied reports whether err is the server refusing a keyed operation.
func IsDenied(err error) bool {
	return errors.Is(err, common.ErrForbidden)
}
