package schema

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Loader resolves schema objects. Catalog implements it; a live session
// could implement it over system_schema.
type Loader interface {
	Load(ctx context.Context, keyspace, name string) (*Object, error)
}

type cacheKey struct {
	tenant   string
	keyspace string
	name     string
}

// Cache memoizes loaded schema objects per tenant.
type Cache struct {
	loader Loader
	lru    *lru.Cache[cacheKey, *Object]
}

// NewCache creates a cache holding at most size objects.
func NewCache(loader Loader, size int) (*Cache, error) {
	l, err := lru.New[cacheKey, *Object](size)
	if err != nil {
		return nil, fmt.Errorf("schema cache: %w", err)
	}
	return &Cache{loader: loader, lru: l}, nil
}

// Get returns the cached object or loads it.
func (c *Cache) Get(ctx context.Context, tenant, keyspace, name string) (*Object, error) {
	key := cacheKey{tenant: tenant, keyspace: keyspace, name: name}
	if obj, ok := c.lru.Get(key); ok {
		return obj, nil
	}
	obj, err := c.loader.Load(ctx, keyspace, name)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, obj)
	return obj, nil
}

// Invalidate drops one object, typically after a successful DDL command.
func (c *Cache) Invalidate(tenant, keyspace, name string) {
	c.lru.Remove(cacheKey{tenant: tenant, keyspace: keyspace, name: name})
}

// Len returns the number of cached objects.
func (c *Cache) Len() int {
	return c.lru.Len()
}
