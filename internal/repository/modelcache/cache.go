package modelcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// DefaultTTL bounds how long a reader may observe a schema after a concurrent edit.
const DefaultTTL = 100 * time.Second

const listSuffix = "\x00*"

// repository is the decorated model repository.
type repository interface {
	Create(ctx context.Context, m dommodel.Model) (dommodel.Model, error)
	Get(ctx context.Context, owner, name string) (dommodel.Model, error)
	List(ctx context.Context, owner string) ([]dommodel.Model, error)
	Update(ctx context.Context, m dommodel.Model) error
	Delete(ctx context.Context, owner, name string) error
	SyncIndexes(ctx context.Context, m dommodel.Model) error
	DropIndexes(ctx context.Context, owner, name string) error
}

// Cache is a read-through TTL cache over the model repository.
// Every write through it invalidates the affected entries before returning.
type Cache struct {
	inner      repository
	cache      *gocache.Cache
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(inner repository, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		inner:      inner,
		cache:      gocache.New(ttl, 2*ttl),
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

func modelKey(owner, name string) string { return owner + "\x00" + name }

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// Get returns a cached model or loads it from the inner repository.
// Lookup errors are not cached.
func (c *Cache) Get(ctx context.Context, owner, name string) (dommodel.Model, error) {
	key := modelKey(owner, name)
	if v, ok := c.cache.Get(key); ok {
		c.incCache("hit")
		return v.(dommodel.Model), nil
	}
	c.incCache("miss")

	m, err := c.inner.Get(ctx, owner, name)
	if err != nil {
		return dommodel.Model{}, err
	}
	c.cache.SetDefault(key, m)
	return m, nil
}

// List returns the owner's cached model list or loads it.
func (c *Cache) List(ctx context.Context, owner string) ([]dommodel.Model, error) {
	key := owner + listSuffix
	if v, ok := c.cache.Get(key); ok {
		c.incCache("hit")
		return v.([]dommodel.Model), nil
	}
	c.incCache("miss")

	ms, err := c.inner.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, ms)
	for _, m := range ms {
		c.cache.SetDefault(modelKey(owner, m.Name()), m)
	}
	return ms, nil
}

// Invalidate drops the cached model and the owner's cached list.
func (c *Cache) Invalidate(owner, name string) {
	c.cache.Delete(modelKey(owner, name))
	c.cache.Delete(owner + listSuffix)
	c.logger.Debug("Schema cache invalidated", zap.String("owner", owner), zap.String("model", name))
}

// Create stores the model and invalidates the owner's list.
func (c *Cache) Create(ctx context.Context, m dommodel.Model) (dommodel.Model, error) {
	created, err := c.inner.Create(ctx, m)
	c.Invalidate(m.Owner(), m.Name())
	return created, err
}

// Update stores the model and invalidates it.
func (c *Cache) Update(ctx context.Context, m dommodel.Model) error {
	err := c.inner.Update(ctx, m)
	c.Invalidate(m.Owner(), m.Name())
	return err
}

// Delete removes the model and invalidates it.
func (c *Cache) Delete(ctx context.Context, owner, name string) error {
	err := c.inner.Delete(ctx, owner, name)
	c.Invalidate(owner, name)
	return err
}

// SyncIndexes passes through.
func (c *Cache) SyncIndexes(ctx context.Context, m dommodel.Model) error {
	return c.inner.SyncIndexes(ctx, m)
}

// DropIndexes passes through.
func (c *Cache) DropIndexes(ctx context.Context, owner, name string) error {
	return c.inner.DropIndexes(ctx, owner, name)
}
