/*
Package cache keeps read-mostly property lookups off the store.

PURPOSE:
  GET /api/homes/{id} is the hottest read of the service. Properties are
  cached in two tiers:

  local:     ccache, per process, short TTL
  memcached: shared between replicas, optional

INVALIDATION:
  The engine calls Invalidate after every committed change to a property,
  including rating recomputation. Invalidate drops both tiers; the next Get
  reloads from the store.
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/karlseguin/ccache/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/stay-engine/engine"
)

const keyPrefix = "stay:property:"

// Loader reads a property from the source of truth.
type Loader func(ctx context.Context, id engine.PropertyID) (*engine.Property, error)

// remote is the subset of *memcache.Client the cache uses.
type remote interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

type Properties struct {
	local  *ccache.Cache[engine.Property]
	remote remote
	ttl    time.Duration
	log    logrus.FieldLogger
}

var _ engine.PropertyInvalidator = (*Properties)(nil)

// NewProperties builds the cache. An empty memcachedHost keeps it local.
func NewProperties(ttl time.Duration, memcachedHost string, log logrus.FieldLogger) *Properties {
	var r remote
	if memcachedHost != "" {
		r = memcache.New(memcachedHost)
	}
	return newProperties(ttl, r, log)
}

func newProperties(ttl time.Duration, r remote, log logrus.FieldLogger) *Properties {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Properties{
		local:  ccache.New(ccache.Configure[engine.Property]().MaxSize(10000)),
		remote: r,
		ttl:    ttl,
		log:    log.WithField("component", "property_cache"),
	}
}

// Get returns the cached property or loads and caches it. Loader errors are
// returned unchanged so NotFoundError keeps its kind.
func (c *Properties) Get(ctx context.Context, id engine.PropertyID, load Loader) (*engine.Property, error) {
	key := keyPrefix + string(id)

	if item := c.local.Get(key); item != nil && !item.Expired() {
		p := item.Value()
		return &p, nil
	}

	if c.remote != nil {
		if p, ok := c.fromRemote(key); ok {
			c.local.Set(key, p, c.ttl)
			return &p, nil
		}
	}

	p, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.local.Set(key, *p, c.ttl)
	c.toRemote(key, *p)
	return p, nil
}

// Invalidate drops id from both tiers.
func (c *Properties) Invalidate(_ context.Context, id engine.PropertyID) {
	key := keyPrefix + string(id)
	c.local.Delete(key)
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		c.log.WithError(err).WithField("property_id", id).Warn("memcached delete failed")
	}
}

// Clear empties the local tier. Remote entries age out with their TTL.
func (c *Properties) Clear() {
	c.local.Clear()
}

// Stop releases the local cache's background worker.
func (c *Properties) Stop() {
	c.local.Stop()
}

func (c *Properties) fromRemote(key string) (engine.Property, bool) {
	item, err := c.remote.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			c.log.WithError(err).WithField("key", key).Warn("memcached get failed")
		}
		return engine.Property{}, false
	}
	var p engine.Property
	if err := json.Unmarshal(item.Value, &p); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return engine.Property{}, false
	}
	return p, true
}

func (c *Properties) toRemote(key string, p engine.Property) {
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("property not cacheable")
		return
	}
	item := &memcache.Item{Key: key, Value: data, Expiration: int32(c.ttl / time.Second)}
	if err := c.remote.Set(item); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("memcached set failed")
	}
}
