package audiomixer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// overflowCacheSize bounds how many dropped sources are remembered.
const overflowCacheSize = 256

// sourceKey identifies a reported source. Ids are only unique within a kind.
type sourceKey struct {
	kind Kind
	id   string
}

// overflowCache remembers sources that were already dropped for lack of a
// free slot, so the warning is logged once per source instead of on every
// report.
type overflowCache struct {
	*lru.Cache[sourceKey, struct{}]
}

func newOverflowCache(size int) overflowCache {
	c, err := lru.New[sourceKey, struct{}](size)
	if err != nil {
		// Only a non-positive size fails, which is a programming error.
		panic(err)
	}
	return overflowCache{Cache: c}
}

// firstDrop records the source and reports whether it was not already known.
func (c overflowCache) firstDrop(kind Kind, id string) bool {
	key := sourceKey{kind: kind, id: id}
	if c.Contains(key) {
		return false
	}
	c.Add(key, struct{}{})
	return true
}

// forget clears the source once it got a slot.
func (c overflowCache) forget(kind Kind, id string) {
	c.Remove(sourceKey{kind: kind, id: id})
}

// retain drops every remembered source of kind that is not in present.
func (c overflowCache) retain(kind Kind, present map[string]struct{}) {
	for _, key := range c.Keys() {
		if key.kind != kind {
			continue
		}
		if _, ok := present[key.id]; !ok {
			c.Remove(key)
		}
	}
}
