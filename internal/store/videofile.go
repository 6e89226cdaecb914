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

const videoFileKeyPrefix = "encodemgr:videofile:"

// videoFileRecord is the Redis-side representation of a source video
// file: its id plus the absolute path VideoUtil.FullFilePath resolves.
type videoFileRecord struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

type videoFileCacheEntry struct {
	rec     *videoFileRecord
	expires time.Time
}

// VideoFileStore implements encodemgr.VideoFileStore and backs
// VideoUtil.FullFilePath, using the same per-key TTL-plus-singleflight
// discipline as RecordedStore.
type VideoFileStore struct {
	client *Client
	log    *zap.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[int64]videoFileCacheEntry

	sg singleflight.Group
}

// NewVideoFileStore constructs a VideoFileStore. ttl <= 0 uses a 5 second
// default.
func NewVideoFileStore(client *Client, log *zap.Logger, ttl time.Duration) *VideoFileStore {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &VideoFileStore{
		client: client,
		log:    log.Named("video_file_store"),
		ttl:    ttl,
		cache:  make(map[int64]videoFileCacheEntry),
	}
}

// FindByID resolves videoFileID, returning (nil, nil) if no such video
// file is registered.
func (s *VideoFileStore) FindByID(ctx context.Context, videoFileID int64) (*encodemgr.VideoFile, error) {
	rec, err := s.resolve(ctx, videoFileID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &encodemgr.VideoFile{ID: rec.ID}, nil
}

// FullFilePath implements encodemgr.VideoUtil.FullFilePath.
func (s *VideoFileStore) FullFilePath(videoFileID int64) (string, bool) {
	rec, err := s.resolve(context.Background(), videoFileID)
	if err != nil || rec == nil {
		return "", false
	}
	return rec.Path, true
}

func (s *VideoFileStore) resolve(ctx context.Context, videoFileID int64) (*videoFileRecord, error) {
	s.mu.RLock()
	if e, ok := s.cache[videoFileID]; ok && time.Now().Before(e.expires) {
		s.mu.RUnlock()
		return e.rec, nil
	}
	s.mu.RUnlock()

	key := strconv.FormatInt(videoFileID, 10)
	v, err, _ := s.sg.Do(key, func() (any, error) {
		return s.fetch(ctx, videoFileID)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*videoFileRecord)
	return rec, nil
}

func (s *VideoFileStore) fetch(ctx context.Context, videoFileID int64) (*videoFileRecord, error) {
	raw, err := s.client.Get(ctx, videoFileKeyPrefix+strconv.FormatInt(videoFileID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.store(videoFileID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video file %d: %w", videoFileID, err)
	}

	var rec videoFileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode video file %d: %w", videoFileID, err)
	}
	s.store(videoFileID, &rec)
	return &rec, nil
}

func (s *VideoFileStore) store(id int64, rec *videoFileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = videoFileCacheEntry{rec: rec, expires: time.Now().Add(s.ttl)}
}
