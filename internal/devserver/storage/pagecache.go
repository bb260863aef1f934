package storage

import (
	"fmt"
	"strconv"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/fumikura/outfeed"
)

const pageCountTTL = 60 // seconds

// PageCountCache memoizes per-filter page counts in memcached so paging
// does not recount on every request. Entries are short-lived; the
// unfiltered key is additionally dropped on insert.
type PageCountCache struct {
	mc *memcache.Client
}

func NewPageCountCache(mc *memcache.Client) *PageCountCache {
	return &PageCountCache{mc: mc}
}

func pageCountKey(ownerID string, f outfeed.Filter) string {
	return fmt.Sprintf("pages:%s:%s:%s", ownerID, f.Tool, f.Date)
}

func (c *PageCountCache) Get(ownerID string, f outfeed.Filter) (int, bool) {
	if c == nil || c.mc == nil {
		return 0, false
	}
	item, err := c.mc.Get(pageCountKey(ownerID, f))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(item.Value))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *PageCountCache) Set(ownerID string, f outfeed.Filter, totalPages int) {
	if c == nil || c.mc == nil {
		return
	}
	_ = c.mc.Set(&memcache.Item{
		Key:        pageCountKey(ownerID, f),
		Value:      []byte(strconv.Itoa(totalPages)),
		Expiration: pageCountTTL,
	})
}

// Invalidate drops the owner's unfiltered count after an insert. Filtered
// keys simply age out.
func (c *PageCountCache) Invalidate(ownerID string) {
	if c == nil || c.mc == nil {
		return
	}
	_ = c.mc.Delete(pageCountKey(ownerID, outfeed.Filter{}))
}
