package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/objectstore"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const reclaimBatchSize = 100

var (
	reclaimRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_reclaim_runs_total",
		Help: "Number of reclaimer passes",
	})

	reclaimObjectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_reclaim_objects_total",
		Help: "Objects handled by the reclaimer by kind and result",
	}, []string{"kind", "result"})

	reclaimDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filevault_reclaim_duration_seconds",
		Help:    "Duration of one reclaimer pass",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReclaimResult summarizes one pass.
type ReclaimResult struct {
	OrphansRemoved int
	StaleFinished  int
	Errors         int
	Duration       time.Duration
}

// Reclaimer removes bytes that lost their record: orphans queued by failed
// uploads and deletes interrupted between hiding the record and removing it.
type Reclaimer struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	store       objectstore.Store
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time

	mu sync.Mutex // serializes RunOnce

	qmu   sync.Mutex
	queue map[string]string // storage key -> file id

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReclaimer(tx dbx.Transactor, rm repomanager.RepositoryManager, store objectstore.Store, interval time.Duration, logger logging.Logger) *Reclaimer {
	return &Reclaimer{
		tx:          tx,
		repomanager: rm,
		store:       store,
		interval:    interval,
		logger:      logger.With("module", "reclaimer"),
		now:         time.Now,
		queue:       make(map[string]string),
	}
}

// Enqueue schedules storageKey for removal on the next pass. If a record
// with fileID turns out to exist, the bytes are left alone.
func (r *Reclaimer) Enqueue(fileID, storageKey string) {
	r.qmu.Lock()
	r.queue[storageKey] = fileID
	r.qmu.Unlock()
}

// Pending returns the number of queued orphan keys.
func (r *Reclaimer) Pending() int {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return len(r.queue)
}

// Start runs a pass immediately and then every interval until Stop or ctx
// is done.
func (r *Reclaimer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx)

	r.logger.Info(ctx, "reclaimer started", "interval", r.interval.String())
}

// Stop cancels the loop and waits for the current pass to finish.
func (r *Reclaimer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info(context.Background(), "reclaimer stopped")
}

func (r *Reclaimer) run(ctx context.Context) {
	defer close(r.done)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass. Safe to call concurrently with the loop.
func (r *Reclaimer) RunOnce(ctx context.Context) *ReclaimResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res := &ReclaimResult{}

	r.reclaimOrphans(ctx, res)
	r.finishStaleDeletes(ctx, res)

	res.Duration = time.Since(start)

	reclaimRunsTotal.Inc()
	reclaimDurationSeconds.Observe(res.Duration.Seconds())

	if res.OrphansRemoved+res.StaleFinished+res.Errors > 0 {
		r.logger.Info(ctx, "reclaim pass finished",
			"orphans", res.OrphansRemoved, "stale", res.StaleFinished, "errors", res.Errors, "duration", res.Duration.String())
	}
	return res
}

func (r *Reclaimer) reclaimOrphans(ctx context.Context, res *ReclaimResult) {
	r.qmu.Lock()
	pending := make(map[string]string, len(r.queue))
	for k, id := range r.queue {
		pending[k] = id
	}
	r.qmu.Unlock()

	for key, fileID := range pending {
		owned, err := r.recordExists(ctx, fileID)
		if err != nil {
			res.Errors++
			reclaimObjectsTotal.WithLabelValues("orphan", "error").Inc()
			r.logger.Warn(ctx, "orphan check failed", "file_id", fileID, "storage_key", key, "error", err)
			continue
		}
		if owned {
			r.dequeue(key)
			reclaimObjectsTotal.WithLabelValues("orphan", "kept").Inc()
			r.logger.Info(ctx, "orphan belongs to a stored record, kept", "file_id", fileID, "storage_key", key)
			continue
		}
		if err := r.store.Delete(ctx, key); err != nil {
			res.Errors++
			reclaimObjectsTotal.WithLabelValues("orphan", "error").Inc()
			r.logger.Warn(ctx, "orphan removal failed", "storage_key", key, "error", err)
			continue
		}
		r.dequeue(key)
		res.OrphansRemoved++
		reclaimObjectsTotal.WithLabelValues("orphan", "removed").Inc()
	}
}

func (r *Reclaimer) dequeue(key string) {
	r.qmu.Lock()
	delete(r.queue, key)
	r.qmu.Unlock()
}

// recordExists reports whether a stored record with fileID is in the catalog.
func (r *Reclaimer) recordExists(ctx context.Context, fileID string) (bool, error) {
	if fileID == "" {
		return false, nil
	}
	err := r.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := r.repomanager.Files(tx).Get(ctx, fileID)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// finishStaleDeletes completes deletes left in the deleting state for longer
// than one interval. Rows are locked for the duration of the pass so that
// several servers never sweep the same record.
func (r *Reclaimer) finishStaleDeletes(ctx context.Context, res *ReclaimResult) {
	cutoff := r.now().Add(-r.interval)

	err := r.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repomanager.Files(tx)

		stale, err := repo.ListStaleDeleting(ctx, cutoff, reclaimBatchSize)
		if err != nil {
			return err
		}

		for _, f := range stale {
			if err := r.store.Delete(ctx, f.StorageKey); err != nil {
				res.Errors++
				reclaimObjectsTotal.WithLabelValues("stale", "error").Inc()
				r.logger.Warn(ctx, "stale delete: remove bytes failed", "file_id", f.ID, "storage_key", f.StorageKey, "error", err)
				continue
			}
			if err := repo.Delete(ctx, f.ID); err != nil {
				return err
			}
			res.StaleFinished++
			reclaimObjectsTotal.WithLabelValues("stale", "finished").Inc()
		}
		return nil
	})
	if err != nil {
		res.Errors++
		r.logger.Error(ctx, "stale delete sweep failed", "error", err)
	}
}
