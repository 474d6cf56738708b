package pattern

import (
	"container/list"
	"regexp"
	"sync"
)

// DefaultMaxSize is the default number of compiled patterns kept.
const DefaultMaxSize = 1000

// Cache is a bounded LRU of compiled matchers. It is safe for concurrent use.
type Cache struct {
	maxSize int

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
}

type cacheEntry struct {
	pattern string
	matcher *Matcher
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSize bounds the number of cached matchers.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// NewCache creates an empty matcher cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		maxSize: DefaultMaxSize,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the matcher for pattern, compiling it on first use.
// Concurrent first uses may compile twice; the first stored result wins.
func (c *Cache) Compile(pattern string) (*Matcher, error) {
	metrics := getCacheMetrics()

	c.mu.Lock()
	if elem, ok := c.entries[pattern]; ok {
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		metrics.hits.Inc()
		return elem.Value.(*cacheEntry).matcher, nil
	}
	c.mu.Unlock()

	metrics.misses.Inc()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	m := newMatcher(pattern, re)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[pattern]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).matcher, nil
	}

	c.entries[pattern] = c.lru.PushFront(&cacheEntry{pattern: pattern, matcher: m})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).pattern)
		metrics.evictions.Inc()
	}
	metrics.size.Set(float64(c.lru.Len()))

	return m, nil
}

// Len returns the number of cached matchers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Reset drops every cached matcher.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	getCacheMetrics().size.Set(0)
}
