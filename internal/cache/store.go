package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tafuta/tafuta/internal/storage"
)

// DefaultBlobKey is the blob key the cache persists under when the
// configuration does not override it.
const DefaultBlobKey = "swahili-profiles.json"

// Store round-trips a DiscoveryCache to a single blob. Load fails open: a
// missing or unreadable blob yields a fresh seeded cache so a discovery run
// can always proceed.
type Store struct {
	blobs  storage.BlobStore
	key    string
	seeds  []string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore builds a Store over the given blob store. seeds is the bootstrap
// handle list used whenever a fresh cache has to be constructed.
func NewStore(blobs storage.BlobStore, key string, seeds []string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultBlobKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		blobs:  blobs,
		key:    key,
		seeds:  append([]string(nil), seeds...),
		logger: logger,
		now:    time.Now,
	}
}

// Load reads the persisted cache. Missing blobs and parse failures are logged
// and answered with a default cache rather than an error.
func (s *Store) Load(ctx context.Context) *DiscoveryCache {
	data, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("cache load failed, starting fresh", zap.Error(err))
		}
		return NewDiscoveryCache(s.seeds)
	}
	var c DiscoveryCache
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("cache blob is unreadable, starting fresh", zap.Error(err))
		return NewDiscoveryCache(s.seeds)
	}
	c.upgrade(s.seeds)
	return &c
}

// Save stamps LastUpdated and writes the full cache back to the blob store.
func (s *Store) Save(ctx context.Context, c *DiscoveryCache) error {
	c.LastUpdated = s.now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, s.key, data)
}

// Clear deletes the persisted blob. The next Load reconstructs the default
// seeded cache.
func (s *Store) Clear(ctx context.Context) error {
	return s.blobs.Delete(ctx, s.key)
}
