package user

import (
	"context"

	"github.com/allegro/bigcache"
	"github.com/pkg/errors"
)

// Cache is a byte cache contract for resolved user snapshots
type Cache interface {
	Put(ctx context.Context, key string, entry []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type defaultCache struct {
	backend *bigcache.BigCache
}

// NewDefaultCache returns a bigcache-backed snapshot cache
func NewDefaultCache(config bigcache.Config) (Cache, error) {
	backend, err := bigcache.NewBigCache(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize default cache")
	}

	return &defaultCache{backend: backend}, nil
}

func (d *defaultCache) Put(ctx context.Context, key string, entry []byte) error {
	return errors.Wrapf(d.backend.Set(key, entry), "failed to cache entry: %s", key)
}

func (d *defaultCache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := d.backend.Get(key)
	if err != nil {
		if err == bigcache.ErrEntryNotFound {
			return nil, ErrCacheMiss
		}

		return nil, err
	}

	return entry, nil
}

func (d *defaultCache) Delete(ctx context.Context, key string) error {
	if err := d.backend.Delete(key); err != nil {
		// deleting an absent entry is not an error
		if err == bigcache.ErrEntryNotFound {
			return nil
		}

		return err
	}

	return nil
}
