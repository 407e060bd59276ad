package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache is the process-local (or shared) packument cache spec.md §4.3
// requires: a name→Packument mapping with a TTL, mutation serialized.
type Cache interface {
	Get(ctx context.Context, name string) (*Packument, bool)
	Set(ctx context.Context, name string, p *Packument)
}

type cacheEntry struct {
	packument *Packument
	expiresAt time.Time
}

// lruCache is the default Cache: process-local, backed by
// hashicorp/golang-lru, with a TTL checked on read. ttl == 0 disables
// expiry, matching spec.md §4.3's "TTL=0 disables expiry" rule.
type lruCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

// NewLRUCache returns the default in-process Cache with capacity size
// entries and the given TTL.
func NewLRUCache(size int, ttl time.Duration) Cache {
	inner, _ := lru.New[string, cacheEntry](size)
	return &lruCache{inner: inner, ttl: ttl}
}

func (c *lruCache) Get(_ context.Context, name string) (*Packument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(name)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.inner.Remove(name)
		return nil, false
	}
	return entry.packument, true
}

func (c *lruCache) Set(_ context.Context, name string, p *Packument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	c.inner.Add(name, cacheEntry{packument: p, expiresAt: expiresAt})
}

// Snapshottable is implemented by caches whose contents can be persisted
// to disk and reloaded on the next invocation. Only the in-process
// lruCache needs this; a redisCache is already shared storage external
// to the process.
type Snapshottable interface {
	Entries() map[string]*Packument
	Load(entries map[string]*Packument)
}

// Entries returns a snapshot of every packument currently cached,
// ignoring TTL so a cold-started process can still reuse entries that
// would still be valid under the configured TTL.
func (c *lruCache) Entries() map[string]*Packument {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*Packument, c.inner.Len())
	for _, k := range c.inner.Keys() {
		if entry, ok := c.inner.Peek(k); ok {
			out[k] = entry.packument
		}
	}
	return out
}

// Load seeds the cache from a prior Entries snapshot, restarting each
// entry's TTL from now rather than trying to preserve an expiry that
// crossed a process boundary.
func (c *lruCache) Load(entries map[string]*Packument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	for name, p := range entries {
		c.inner.Add(name, cacheEntry{packument: p, expiresAt: expiresAt})
	}
}

// SaveSnapshot writes c's contents (when c is Snapshottable) to path on
// fs as a msgpack blob. Non-snapshottable caches (redisCache) are a
// silent no-op since their storage already outlives the process.
func SaveSnapshot(fs afero.Fs, path string, c Cache) error {
	snap, ok := c.(Snapshottable)
	if !ok {
		return nil
	}
	data, err := EncodeSnapshot(snap.Entries())
	if err != nil {
		return fmt.Errorf("encoding cache snapshot: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache snapshot directory: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// LoadSnapshot reads a msgpack blob written by SaveSnapshot back into c,
// when c is Snapshottable. A missing file is not an error.
func LoadSnapshot(fs afero.Fs, path string, c Cache) error {
	snap, ok := c.(Snapshottable)
	if !ok {
		return nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil
	}
	entries, err := DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("decoding cache snapshot: %w", err)
	}
	snap.Load(entries)
	return nil
}

// redisCache is the optional shared-across-processes Cache, for teams
// running several pkgforge invocations (e.g. CI matrix jobs) against the
// same registry and wanting to split the packument fetch cost between
// them. Packuments are serialized with msgpack rather than encoding/json
// to keep the snapshot small and fast to decode.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache returns a Cache backed by a Redis instance at addr.
func NewRedisCache(addr, prefix string, ttl time.Duration) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		prefix: prefix,
	}
}

func (c *redisCache) Get(ctx context.Context, name string) (*Packument, bool) {
	data, err := c.client.Get(ctx, c.prefix+name).Bytes()
	if err != nil {
		return nil, false
	}
	var p Packument
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *redisCache) Set(ctx context.Context, name string, p *Packument) {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+name, data, c.ttl)
}

// DiskSnapshot persists a Cache's contents (the lruCache only) to a
// single msgpack-encoded file between runs, so a second invocation
// within the TTL window skips the network entirely.
type DiskSnapshot struct {
	Entries map[string]*Packument
}

// EncodeSnapshot serializes packuments into a msgpack blob.
func EncodeSnapshot(entries map[string]*Packument) ([]byte, error) {
	return msgpack.Marshal(&DiskSnapshot{Entries: entries})
}

// DecodeSnapshot parses a msgpack blob written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (map[string]*Packument, error) {
	var snap DiskSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return snap.Entries, nil
}
