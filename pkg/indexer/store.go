package indexer

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store caches built indexes by dataset ID.
type Store interface {
	Get(key string) (*DatasetIndex, bool)
	Set(key string, idx *DatasetIndex, ttl time.Duration)
	Delete(key string)
	DeleteAll()
	Len() int
}

// TTLStore is a Store backed by ttlcache. Expired entries are dropped on read;
// no background eviction goroutine is started.
type TTLStore struct {
	cache *ttlcache.Cache[string, *DatasetIndex]
}

func NewTTLStore(ttl time.Duration) *TTLStore {
	return &TTLStore{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *DatasetIndex](ttl),
			ttlcache.WithDisableTouchOnHit[string, *DatasetIndex](),
		),
	}
}

func (s *TTLStore) Get(key string) (*DatasetIndex, bool) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *TTLStore) Set(key string, idx *DatasetIndex, ttl time.Duration) {
	s.cache.Set(key, idx, ttl)
}

func (s *TTLStore) Delete(key string) {
	s.cache.Delete(key)
}

func (s *TTLStore) DeleteAll() {
	s.cache.DeleteAll()
}

func (s *TTLStore) Len() int {
	return s.cache.Len()
}
