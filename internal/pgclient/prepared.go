package pgclient

import (
	"container/list"

	"github.com/elefantsql/elefant/internal/protocol"
)

// defaultStatementCacheSize bounds the process-local prepared-statement
// LRU, per spec.md §4.5's "implementation-defined capacity". No LRU
// library appears anywhere in the retrieved corpus, so this hand-rolls
// one over container/list, the same way the teacher hand-rolls its own
// bookkeeping types instead of reaching for a generic container library.
const defaultStatementCacheSize = 64

// preparedStatement is what the cache stores per SQL text, per spec.md
// §4.5: "(SQL text) -> (server statement name, parameter_type_oids, last
// row description)".
type preparedStatement struct {
	name      string
	paramOIDs []int32
	fields    []protocol.FieldDescription
}

type cacheEntry struct {
	sql  string
	stmt *preparedStatement
}

// statementCache is a capacity-bounded LRU keyed by SQL text. Eviction
// calls onEvict(name) so the owning Client can ask the server to close
// the statement it no longer tracks, instead of leaking it server-side.
type statementCache struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	onEvict  func(name string)
}

func newStatementCache(capacity int) *statementCache {
	return &statementCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *statementCache) Get(sql string) (*preparedStatement, bool) {
	el, ok := c.items[sql]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).stmt, true
}

func (c *statementCache) Put(sql string, stmt *preparedStatement) {
	if el, ok := c.items[sql]; ok {
		el.Value.(*cacheEntry).stmt = stmt
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{sql: sql, stmt: stmt})
	c.items[sql] = el
	if c.ll.Len() <= c.capacity {
		return
	}
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	entry := oldest.Value.(*cacheEntry)
	delete(c.items, entry.sql)
	if c.onEvict != nil {
		c.onEvict(entry.stmt.name)
	}
}
