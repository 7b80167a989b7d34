package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/filevault/internal/client/client"
	"github.com/dmitrijs2005/filevault/internal/client/models"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
)

const devTokenValidity = 24 * time.Hour

var errNoKey = errors.New("download key is required")

func (a *App) upload(ctx context.Context, path, contentType string) error {
	res, err := a.transfers.UploadFile(ctx, path, contentType)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, describe(err))
	}

	fmt.Fprintf(a.out, "File ID:      %s\n", res.FileID)
	fmt.Fprintf(a.out, "Download key: %s\n", res.DownloadKey)
	fmt.Fprintln(a.out, "Keep the key: it is shown only once and cannot be recovered.")
	return nil
}

func (a *App) list(ctx context.Context, contentType string) error {
	files, err := a.api.List(ctx, contentType)
	if err != nil {
		return fmt.Errorf("list: %w", describe(err))
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tUPLOADED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.FileID, f.FileName, f.ContentType, formatSize(f.SizeBytes), f.UploadedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *App) stats(ctx context.Context) error {
	st, err := a.api.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", describe(err))
	}
	fmt.Fprintf(a.out, "Files: %d\nTotal: %s\n", st.FileCount, formatSize(st.TotalBytes))
	return nil
}

func (a *App) info(ctx context.Context, fileID string) error {
	f, err := a.api.Get(ctx, fileID)
	if err != nil {
		return fmt.Errorf("info %s: %w", fileID, describe(err))
	}
	a.printInfo(f)
	return nil
}

func (a *App) printInfo(f *models.FileInfo) {
	fmt.Fprintf(a.out, "ID:       %s\n", f.FileID)
	fmt.Fprintf(a.out, "Name:     %s\n", f.FileName)
	fmt.Fprintf(a.out, "Type:     %s\n", f.ContentType)
	fmt.Fprintf(a.out, "Size:     %s (%d bytes)\n", formatSize(f.SizeBytes), f.SizeBytes)
	fmt.Fprintf(a.out, "Uploaded: %s\n", f.UploadedAt.Local().Format(time.RFC3339))
}

func (a *App) download(ctx context.Context, fileID, dir string) error {
	key, err := a.downloadKey()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	path, err := a.transfers.DownloadFile(ctx, fileID, string(key), dir)
	if err != nil {
		return fmt.Errorf("download %s: %w", fileID, describe(err))
	}
	fmt.Fprintf(a.out, "Saved to %s\n", path)
	return nil
}

func (a *App) delete(ctx context.Context, fileID string) error {
	key, err := a.downloadKey()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	if err := a.api.Delete(ctx, fileID, string(key)); err != nil {
		return fmt.Errorf("delete %s: %w", fileID, describe(err))
	}
	fmt.Fprintf(a.out, "Deleted %s\n", fileID)
	return nil
}

func (a *App) token(userID string) error {
	if a.config.Secret == "" {
		return errors.New("token: signing secret is empty, pass -s")
	}
	tok, err := auth.GenerateToken(userID, []byte(a.config.Secret), devTokenValidity)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	fmt.Fprintln(a.out, tok)
	return nil
}

func (a *App) downloadKey() ([]byte, error) {
	if a.config.DownloadKey != "" {
		return []byte(a.config.DownloadKey), nil
	}
	key, err := GetSecret(a.reader, "Enter download key", a.out)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	if len(key) == 0 {
		return nil, errNoKey
	}
	return key, nil
}

// describe adds a hint for the errors a user can act on.
func describe(err error) error {
	switch {
	case client.IsDenied(err):
		return fmt.Errorf("%w (wrong key, or the file does not exist or is not yours)", err)
	case errors.Is(err, common.ErrTooManyAttempts):
		return fmt.Errorf("%w (wait before retrying)", err)
	case errors.Is(err, common.ErrorUnauthorized):
		return fmt.Errorf("%w (pass a token with -t or FILEVAULT_TOKEN)", err)
	case errors.Is(err, client.ErrUnavailable):
		return fmt.Errorf("%w (is the server running?)", err)
	default:
		return err
	}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
