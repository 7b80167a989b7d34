// Package access implements the two-factor check guarding downloads and
// deletes: the caller must own the file and present its download key.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Action names the operation being authorized.
type Action string

const (
	ActionDownload Action = "download"
	ActionDelete   Action = "delete"
)

var accessDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "filevault_access_decisions_total",
		Help: "Access gate decisions by action and result",
	},
	[]string{"action", "result"},
)

// FileGetter is the catalog lookup the gate needs.
type FileGetter interface {
	Get(ctx context.Context, id string) (*models.File, error)
}

// KeyHasher hashes and verifies download keys.
type KeyHasher interface {
	Hash(key string) []byte
	Verify(key string, hash []byte) bool
}

// Options tune the failed-attempt limiter. MaxFailedAttempts <= 0 disables it.
type Options struct {
	MaxFailedAttempts   int
	FailedAttemptWindow time.Duration
	TrackedPairs        int
}

// Gate authorizes (owner, file, key) triples.
type Gate struct {
	files     FileGetter
	hasher    KeyHasher
	limiter   *attemptLimiter
	dummyHash []byte
	logger    logging.Logger
}

func NewGate(files FileGetter, hasher KeyHasher, opts Options, logger logging.Logger) *Gate {
	return &Gate{
		files:     files,
		hasher:    hasher,
		limiter:   newAttemptLimiter(opts),
		dummyHash: hasher.Hash(string(common.GenerateRandByteArray(32))),
		logger:    logger.With("module", "access"),
	}
}

// Authorize returns the record when ownerID owns fileID and key matches its
// key hash. Failures are common.ErrorNotFound, common.ErrForbidden,
// common.ErrInvalidKey or common.ErrTooManyAttempts; catalog failures are
// passed through unchanged. The key is hashed on every path so timing does
// not reveal which check failed.
func (g *Gate) Authorize(ctx context.Context, ownerID, fileID, key string, action Action) (*models.File, error) {
	pair := ownerID + "\x00" + fileID

	if !g.limiter.begin(pair) {
		g.record(action, "throttled")
		g.logger.Warn(ctx, "access throttled", "file_id", fileID, "owner", ownerID, "action", string(action))
		return nil, common.ErrTooManyAttempts
	}

	f, err := g.files.Get(ctx, fileID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		g.limiter.release(pair)
		return nil, err
	}

	hash := g.dummyHash
	if f != nil {
		hash = f.KeyHash
	}
	keyOK := g.hasher.Verify(key, hash)

	var result string
	switch {
	case f == nil:
		err, result = common.ErrorNotFound, "not_found"
	case f.OwnerID != ownerID:
		err, result = common.ErrForbidden, "forbidden"
	case !keyOK:
		err, result = common.ErrInvalidKey, "invalid_key"
	}

	if err != nil {
		g.limiter.fail(pair)
		g.record(action, result)
		g.logger.Debug(ctx, "access denied", "file_id", fileID, "owner", ownerID, "action", string(action), "reason", result)
		return nil, err
	}

	g.limiter.reset(pair)
	g.record(action, "allow")
	return f, nil
}

func (g *Gate) record(action Action, result string) {
	accessDecisions.WithLabelValues(string(action), result).Inc()
}
