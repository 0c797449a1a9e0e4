// Package stmtcache implements the prepared-statement LRU cache
// SPEC_FULL.md §4.9 adds back in: a per-connection cache keyed by SQL
// text, so repeated Execute calls on identical SQL reuse a server-side
// prepared statement instead of re-Parse-ing an unnamed one every time.
// Grounded on the teacher's internal/stmtcache/lru_cache.go.
package stmtcache

import "container/list"

// Entry is the cached bookkeeping for one server-side prepared
// statement.
type Entry struct {
	SQL           string
	StatementName string
	ParameterOIDs []uint32

	// ResultOIDs is the output column types learned from this
	// statement's first Describe response, letting a later Bind decide
	// per-column result format instead of requesting text blind.
	ResultOIDs []uint32
}

// Cache is a fixed-capacity, least-recently-used cache from SQL text to
// Entry.
type Cache struct {
	cap int
	m   map[string]*list.Element
	l   *list.List

	evicted []*Entry
}

// New creates a Cache holding at most capacity entries.
func New(capacity int) *Cache {
	return &Cache{cap: capacity, m: make(map[string]*list.Element), l: list.New()}
}

// Get returns the cached Entry for sql, moving it to the front (most
// recently used), or nil if sql is not cached.
func (c *Cache) Get(sql string) *Entry {
	if el, ok := c.m[sql]; ok {
		c.l.MoveToFront(el)
		return el.Value.(*Entry)
	}
	return nil
}

// Put stores e, evicting the least-recently-used entry if the cache is
// at capacity. Put is a no-op if e.SQL is already cached.
func (c *Cache) Put(e *Entry) {
	if e.SQL == "" {
		panic("stmtcache: cannot cache an entry with empty SQL")
	}
	if _, present := c.m[e.SQL]; present {
		return
	}
	if c.cap > 0 && c.l.Len() >= c.cap {
		c.evictOldest()
	}
	c.m[e.SQL] = c.l.PushFront(e)
}

// Invalidate removes sql from the cache, recording the evicted Entry so
// the caller can emit a Close message for its server-side name.
func (c *Cache) Invalidate(sql string) {
	if el, ok := c.m[sql]; ok {
		delete(c.m, sql)
		c.evicted = append(c.evicted, el.Value.(*Entry))
		c.l.Remove(el)
	}
}

// InvalidateAll clears the cache, e.g. after a connection Reset that ran
// DISCARD ALL and thereby dropped every server-side prepared statement.
func (c *Cache) InvalidateAll() {
	for el := c.l.Front(); el != nil; el = el.Next() {
		c.evicted = append(c.evicted, el.Value.(*Entry))
	}
	c.m = make(map[string]*list.Element)
	c.l = list.New()
}

// TakeEvicted returns and clears the list of entries evicted since the
// last call, so the caller can emit Close(S) for each one.
func (c *Cache) TakeEvicted() []*Entry {
	e := c.evicted
	c.evicted = nil
	return e
}

func (c *Cache) Len() int { return c.l.Len() }
func (c *Cache) Cap() int { return c.cap }

func (c *Cache) evictOldest() {
	oldest := c.l.Back()
	e := oldest.Value.(*Entry)
	c.evicted = append(c.evicted, e)
	delete(c.m, e.SQL)
	c.l.Remove(oldest)
}
