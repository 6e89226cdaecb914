package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/edirooss/encode-manager/internal/encodemgr"
)

const recordedKeyPrefix = "encodemgr:recorded:"

// cacheEntry is one per-id TTL slot (avoids a hot-path Redis round trip
// per lookup while still reading the real store on expiry).
type cacheEntry struct {
	rec     *encodemgr.RecordedMetadata
	expires time.Time
}

// RecordedStore implements encodemgr.RecordedStore against Redis, with a
// short-lived in-memory cache coalesced through singleflight so a burst of
// concurrent promotions referencing the same recording only ever costs one
// Redis round trip (internal/service/channel_summary.go's caching
// discipline in the pack, adapted from one shared snapshot to a per-key
// cache since recordedId varies per job).
type RecordedStore struct {
	client *Client
	log    *zap.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[int64]cacheEntry

	sg singleflight.Group
}

// NewRecordedStore constructs a RecordedStore. ttl <= 0 uses a 5 second
// default.
func NewRecordedStore(client *Client, log *zap.Logger, ttl time.Duration) *RecordedStore {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RecordedStore{
		client: client,
		log:    log.Named("recorded_store"),
		ttl:    ttl,
		cache:  make(map[int64]cacheEntry),
	}
}

// FindByID resolves recordedID, returning (nil, nil) if no such recording
// exists in the backing store.
func (s *RecordedStore) FindByID(ctx context.Context, recordedID int64) (*encodemgr.RecordedMetadata, error) {
	s.mu.RLock()
	if e, ok := s.cache[recordedID]; ok && time.Now().Before(e.expires) {
		s.mu.RUnlock()
		return e.rec, nil
	}
	s.mu.RUnlock()

	key := strconv.FormatInt(recordedID, 10)
	v, err, _ := s.sg.Do(key, func() (any, error) {
		return s.fetch(ctx, recordedID)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*encodemgr.RecordedMetadata)
	return rec, nil
}

func (s *RecordedStore) fetch(ctx context.Context, recordedID int64) (*encodemgr.RecordedMetadata, error) {
	raw, err := s.client.Get(ctx, recordedKeyPrefix+strconv.FormatInt(recordedID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.store(recordedID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recorded %d: %w", recordedID, err)
	}

	var rec encodemgr.RecordedMetadata
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode recorded %d: %w", recordedID, err)
	}
	s.store(recordedID, &rec)
	return &rec, nil
}

func (s *RecordedStore) store(id int64, rec *encodemgr.RecordedMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = cacheEntry{rec: rec, expires: time.Now().Add(s.ttl)}
}
