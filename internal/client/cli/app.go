package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/filevault/internal/client/client"
	"github.com/dmitrijs2005/filevault/internal/client/config"
	"github.com/dmitrijs2005/filevault/internal/client/services"
)

var ErrUsage = errors.New("usage")

type App struct {
	config    *config.Config
	api       client.Client
	transfers services.TransferService
	reader    *bufio.Reader
	out       io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	api, err := client.NewHTTPClient(c.ServerURL, c.Token, c.Timeout)
	if err != nil {
		return nil, err
	}

	return &App{
		config:    c,
		api:       api,
		transfers: services.NewTransferService(api),
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}, nil
}

const usage = `Usage: filevault-cli [-a url] [-t token] [-k key] [-s secret] [-d dir] <command>

Commands:
  upload <path> [contentType]
  list [contentType]
  stats
  info <fileId>
  download <fileId> [dir]
  delete <fileId>
  token <userId>`

// Run executes the command in args. ErrUsage is returned for unknown
// commands and missing operands.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usageError("no command given")
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	case "upload":
		if len(rest) < 1 || len(rest) > 2 {
			return a.usageError("upload <path> [contentType]")
		}
		return a.upload(ctx, rest[0], optional(rest, 1))
	case "list":
		if len(rest) > 1 {
			return a.usageError("list [contentType]")
		}
		return a.list(ctx, optional(rest, 0))
	case "stats":
		return a.stats(ctx)
	case "info":
		if len(rest) != 1 {
			return a.usageError("info <fileId>")
		}
		return a.info(ctx, rest[0])
	case "download":
		if len(rest) < 1 || len(rest) > 2 {
			return a.usageError("download <fileId> [dir]")
		}
		dir := optional(rest, 1)
		if dir == "" {
			dir = a.config.DownloadDir
		}
		return a.download(ctx, rest[0], dir)
	case "delete":
		if len(rest) != 1 {
			return a.usageError("delete <fileId>")
		}
		return a.delete(ctx, rest[0])
	case "token":
		if len(rest) != 1 {
			return a.usageError("token <userId>")
		}
		return a.token(rest[0])
	default:
		return a.usageError("unknown command: " + cmd)
	}
}

func (a *App) usageError(msg string) error {
	fmt.Fprintln(a.out, usage)
	return fmt.Errorf("%w: %s", ErrUsage, msg)
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
