package metadata

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/malbeclabs/nlquery/pkg/dataset"
)

const (
	defaultCacheTTL = time.Hour
)

type CacheConfig struct {
	Logger   *slog.Logger
	Analyzer *Analyzer
	TTL      time.Duration
}

func (cfg *CacheConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = DefaultAnalyzer()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	return nil
}

// Cache memoizes dataset metadata by dataset ID and row count.
type Cache struct {
	log      *slog.Logger
	cfg      CacheConfig
	cache    *ristretto.Cache
	analyzer *Analyzer
}

func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata cache config: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     100_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	return &Cache{
		log:      cfg.Logger,
		cfg:      cfg,
		cache:    cache,
		analyzer: cfg.Analyzer,
	}, nil
}

// Get returns cached metadata for the dataset, analyzing it on a miss.
func (c *Cache) Get(ds *dataset.Dataset) *DatasetMetadata {
	key := cacheKey(ds)
	if val, ok := c.cache.Get(key); ok {
		if md, ok := val.(*DatasetMetadata); ok {
			return md
		}
	}

	start := time.Now()
	md := c.analyzer.Analyze(ds)
	c.log.Debug("metadata: analyzed dataset", "dataset", ds.ID, "rows", md.RowCount, "columns", md.ColumnCount, "duration", time.Since(start))

	c.cache.SetWithTTL(key, md, 1, c.cfg.TTL)
	c.cache.Wait()
	return md
}

// Invalidate drops cached metadata for the dataset.
func (c *Cache) Invalidate(ds *dataset.Dataset) {
	c.cache.Del(cacheKey(ds))
}

func (c *Cache) Clear() {
	c.cache.Clear()
}

func (c *Cache) Close() {
	c.cache.Close()
}

func cacheKey(ds *dataset.Dataset) string {
	return fmt.Sprintf("%s:%d", ds.ID, len(ds.Rows))
}
