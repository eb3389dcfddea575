package thumbcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
	"photo-library/internal/store"
)

// Tiers are the fixed thumbnail sizes, in pixels on the longest side.
var Tiers = []int{256, 1024, 2048}

// DefaultMemoryBound is the default number of entries the memory tier holds.
const DefaultMemoryBound = 500

// ValidTier reports whether size is one of the supported tiers.
func ValidTier(size int) bool {
	for _, t := range Tiers {
		if t == size {
			return true
		}
	}
	return false
}

// Renderer is the image decode/render collaborator. Implementations produce
// a JPEG no larger than sizePx on the longest side.
type Renderer interface {
	Render(ctx context.Context, img *store.Image, edit *store.EditState, sizePx int) ([]byte, error)
}

// EditSource resolves the latest edit state for an image, or nil when the
// image has never been edited.
type EditSource func(ctx context.Context, imageID string) (*store.EditState, error)

type cacheKey struct {
	id   string
	tier int
}

// generation tracks one in-flight render so overlapping callers can share
// its result. The render itself is detached from any caller's context:
// cancelling a waiter never cancels the work or its siblings, and a
// cancelled render still populates the cache when it finishes.
type generation struct {
	done chan struct{}
	data []byte
	err  error
}

// Cache is the tiered thumbnail cache of one library: a bounded in-memory
// tier over an unbounded on-disk tier, with on-demand generation through
// the renderer collaborator. Safe for concurrent use.
type Cache struct {
	dir        string
	renderer   Renderer
	editSource EditSource

	mu          sync.Mutex
	memory      map[cacheKey][]byte
	order       []cacheKey // insertion order; oldest evicted first
	memoryBound int
	inflight    map[cacheKey]*generation
}

// New creates a cache rooted at dir (the bundle's Thumbnails directory).
// editSource may be nil if thumbnails should ignore edit states.
func New(dir string, renderer Renderer, editSource EditSource) *Cache {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn("Thumbnail cache: failed to create dir %s: %v", dir, err)
	}
	return &Cache{
		dir:         dir,
		renderer:    renderer,
		editSource:  editSource,
		memory:      make(map[cacheKey][]byte),
		memoryBound: DefaultMemoryBound,
		inflight:    make(map[cacheKey]*generation),
	}
}

// SetEditSource installs the edit-state resolver. Used to break the
// construction cycle between the cache and the library facade.
func (c *Cache) SetEditSource(es EditSource) {
	c.mu.Lock()
	c.editSource = es
	c.mu.Unlock()
}

// SetMemoryBound adjusts the memory-tier entry bound. Entries beyond the
// new bound are evicted immediately, oldest first.
func (c *Cache) SetMemoryBound(n int) {
	if n < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryBound = n
	c.evictLocked()
}

// Thumbnail returns the bitmap for (image, tier), consulting the memory
// tier, then the disk tier, then generating on demand. Generation failures
// are returned to the caller and never cached; a missing or corrupt disk
// entry is a miss, not an error.
//
// Cancelling ctx abandons the wait but not the generation; the result still
// lands in both tiers for the next caller.
func (c *Cache) Thumbnail(ctx context.Context, img *store.Image, tier int) ([]byte, error) {
	if !ValidTier(tier) {
		return nil, fmt.Errorf("unsupported thumbnail tier %d", tier)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", liberr.ErrCanceled, err)
	}

	key := cacheKey{id: img.ID, tier: tier}

	if data, ok := c.memoryGet(key); ok {
		metrics.CacheRequestsTotal.WithLabelValues("memory_hit").Inc()
		return data, nil
	}

	if data, ok := c.diskGet(key); ok {
		metrics.CacheRequestsTotal.WithLabelValues("disk_hit").Inc()
		c.memoryPut(key, data)
		return data, nil
	}

	gen := c.startGeneration(img, key)

	select {
	case <-gen.done:
		if gen.err != nil {
			metrics.CacheRequestsTotal.WithLabelValues("failed").Inc()
			return nil, gen.err
		}
		metrics.CacheRequestsTotal.WithLabelValues("generated").Inc()
		return gen.data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", liberr.ErrCanceled, ctx.Err())
	}
}

// GenerateAll eagerly populates every tier for an image, smallest first so
// grid browsing benefits soonest. Used after import. Cancellation between
// tiers is honored; tiers already generated stay cached.
func (c *Cache) GenerateAll(ctx context.Context, img *store.Image) error {
	for _, tier := range Tiers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", liberr.ErrCanceled, err)
		}
		if _, err := c.Thumbnail(ctx, img, tier); err != nil {
			return fmt.Errorf("tier %d: %w", tier, err)
		}
	}
	return nil
}

// Invalidate drops every tier of an image from both cache tiers. Called
// when an image's edit state changes or the image is deleted.
func (c *Cache) Invalidate(imageID string) {
	c.mu.Lock()
	for _, tier := range Tiers {
		key := cacheKey{id: imageID, tier: tier}
		if _, ok := c.memory[key]; ok {
			delete(c.memory, key)
			c.removeFromOrderLocked(key)
		}
	}
	metrics.CacheMemoryEntries.Set(float64(len(c.memory)))
	c.mu.Unlock()

	for _, tier := range Tiers {
		path := c.diskPath(cacheKey{id: imageID, tier: tier})
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove cached thumbnail %s: %v", path, err)
		}
	}
}

// MemoryLen returns the number of entries currently in the memory tier.
func (c *Cache) MemoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memory)
}

// startGeneration joins an in-flight render for key or starts a new one.
// The render runs detached so no single caller owns its lifetime.
func (c *Cache) startGeneration(img *store.Image, key cacheKey) *generation {
	c.mu.Lock()
	if gen, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return gen
	}
	gen := &generation{done: make(chan struct{})}
	c.inflight[key] = gen
	c.mu.Unlock()

	// Keep a private copy: the caller's record may be mutated by the facade
	// while the render runs.
	go c.generate(img.Clone(), key, gen)
	return gen
}

func (c *Cache) generate(img *store.Image, key cacheKey, gen *generation) {
	start := time.Now()
	defer func() {
		metrics.CacheGenerationDuration.WithLabelValues(fmt.Sprint(key.tier)).
			Observe(time.Since(start).Seconds())
	}()

	// Detached from the requesting context: a cancelled caller accepts the
	// wasted work in exchange for a warm cache.
	ctx := context.Background()

	c.mu.Lock()
	editSource := c.editSource
	c.mu.Unlock()

	var edit *store.EditState
	if editSource != nil {
		var err error
		edit, err = editSource(ctx, key.id)
		if err != nil && !errors.Is(err, liberr.ErrNotFound) {
			logging.Warn("Thumbnail generation: failed to load edit for %s: %v", key.id, err)
		}
	}

	data, err := c.renderer.Render(ctx, img, edit, key.tier)

	if err == nil {
		c.diskPut(key, data)
		c.memoryPut(key, data)
	} else {
		logging.Debug("Thumbnail generation failed for %s@%d: %v", key.id, key.tier, err)
	}

	gen.data = data
	gen.err = err

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	close(gen.done)
}

func (c *Cache) memoryGet(key cacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.memory[key]
	return data, ok
}

// memoryPut inserts an entry and evicts oldest-inserted entries beyond the
// bound. Insertion-order eviction, upgradeable to strict LRU if browsing
// patterns demand it.
func (c *Cache) memoryPut(key cacheKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.memory[key]; exists {
		// Regeneration: replace in place, keep the original insertion slot.
		c.memory[key] = data
		return
	}

	c.memory[key] = data
	c.order = append(c.order, key)
	c.evictLocked()
	metrics.CacheMemoryEntries.Set(float64(len(c.memory)))
}

func (c *Cache) evictLocked() {
	for len(c.memory) > c.memoryBound && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.memory[oldest]; ok {
			delete(c.memory, oldest)
			metrics.CacheEvictionsTotal.Inc()
		}
	}
}

func (c *Cache) removeFromOrderLocked(key cacheKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// diskGet reads a disk-tier entry. Anything unreadable or visibly not a
// JPEG is treated as a miss and will be regenerated.
func (c *Cache) diskGet(key cacheKey) ([]byte, bool) {
	data, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		return nil, false
	}
	if len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 {
		logging.Warn("Corrupt thumbnail on disk for %s@%d, regenerating", key.id, key.tier)
		return nil, false
	}
	return data, true
}

// diskPut writes a disk-tier entry via rename so concurrent readers never
// observe a partial file. Overlapping writers race benignly: the content is
// derived, last writer wins.
func (c *Cache) diskPut(key cacheKey, data []byte) {
	path := c.diskPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logging.Warn("Failed to create thumbnail shard dir: %v", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*")
	if err != nil {
		logging.Warn("Failed to stage thumbnail %s: %v", path, err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		logging.Warn("Failed to write thumbnail %s: %v", path, err)
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return
	}
	if err := tmp.Close(); err != nil {
		logging.Warn("Failed to close thumbnail %s: %v", path, err)
		_ = os.Remove(tmpName)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		logging.Warn("Failed to publish thumbnail %s: %v", path, err)
		_ = os.Remove(tmpName)
	}
}

// diskPath shards by the first two characters of the image id to bound
// directory fan-out: Thumbnails/<shard>/<id>.thumb<size>.
func (c *Cache) diskPath(key cacheKey) string {
	shard := "00"
	if len(key.id) >= 2 {
		shard = key.id[:2]
	}
	return filepath.Join(c.dir, shard, fmt.Sprintf("%s.thumb%d", key.id, key.tier))
}
