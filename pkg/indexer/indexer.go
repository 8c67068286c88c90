package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL = time.Hour
)

type Config struct {
	Logger *slog.Logger
	Store  Store
	Clock  clockwork.Clock
	TTL    time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Store == nil {
		cfg.Store = NewTTLStore(cfg.TTL)
	}
	return nil
}

// Indexer builds and caches dataset indexes. Concurrent requests for the same
// dataset share one build; different datasets build independently.
type Indexer struct {
	log    *slog.Logger
	cfg    Config
	builds singleflight.Group
}

func New(cfg Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid indexer config: %w", err)
	}
	return &Indexer{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Get returns a fresh cached index for the dataset ID.
func (ix *Indexer) Get(datasetID string) (*DatasetIndex, bool) {
	idx, ok := ix.cfg.Store.Get(datasetID)
	if !ok || ix.stale(idx) {
		return nil, false
	}
	return idx, true
}

// GetOrBuild returns the cached index when it is fresh and was built from the
// same number of rows, and builds a new one otherwise. A shared build is not
// cancelled by any one caller; each caller stops waiting when its own ctx is done.
func (ix *Indexer) GetOrBuild(ctx context.Context, ds *dataset.Dataset) (*DatasetIndex, error) {
	if idx, ok := ix.Get(ds.ID); ok && idx.Covers(len(ds.Rows)) {
		metrics.IndexLookupsTotal.WithLabelValues("hit").Inc()
		return idx, nil
	}
	metrics.IndexLookupsTotal.WithLabelValues("miss").Inc()

	key := fmt.Sprintf("%s:%d", ds.ID, len(ds.Rows))
	buildCtx := context.WithoutCancel(ctx)
	ch := ix.builds.DoChan(key, func() (any, error) {
		return ix.build(buildCtx, ds)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DatasetIndex), nil
	}
}

func (ix *Indexer) build(ctx context.Context, ds *dataset.Dataset) (*DatasetIndex, error) {
	start := ix.cfg.Clock.Now()
	idx, err := Build(ctx, ds, start)
	if err != nil {
		metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to build index for dataset %s: %w", ds.ID, err)
	}
	metrics.IndexBuildsTotal.WithLabelValues("ok").Inc()
	metrics.IndexBuildDuration.Observe(ix.cfg.Clock.Since(start).Seconds())

	ix.cfg.Store.Set(ds.ID, idx, ix.cfg.TTL)
	ix.log.Debug("indexer: built index", "dataset", ds.ID, "rows", idx.RowCount, "columns", len(idx.Columns), "aggregates", len(idx.Aggregates))
	return idx, nil
}

// Invalidate drops the cached index for one dataset.
func (ix *Indexer) Invalidate(datasetID string) {
	ix.cfg.Store.Delete(datasetID)
	ix.log.Debug("indexer: invalidated index", "dataset", datasetID)
}

// InvalidateAll drops every cached index.
func (ix *Indexer) InvalidateAll() {
	ix.cfg.Store.DeleteAll()
	ix.log.Debug("indexer: invalidated all indexes")
}

func (ix *Indexer) stale(idx *DatasetIndex) bool {
	return ix.cfg.Clock.Since(idx.CreatedAt) >= ix.cfg.TTL
}
