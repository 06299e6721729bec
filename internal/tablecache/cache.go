// Package tablecache memoizes each connection's table list for the life of
// the process. Entries never expire; they are dropped only by Invalidate or
// Evict.
package tablecache

import (
	"context"
	"slices"
	"sync"

	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/logger"
	"github.com/willibrandon/dbpanel/internal/metrics"
	"github.com/willibrandon/dbpanel/internal/notify"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the table list for one connection from the server.
type FetchFunc func(ctx context.Context) ([]models.TableDescriptor, error)

// Cache maps connection ids to table lists.
type Cache struct {
	notifier *notify.Notifier
	group    singleflight.Group

	mu      sync.Mutex
	entries map[string][]models.TableDescriptor
	// gen is bumped on every removal so a fetch that started before an
	// invalidation does not repopulate the entry.
	gen map[string]uint64
}

// New creates an empty Cache. A nil notifier disables notifications.
func New(n *notify.Notifier) *Cache {
	if n == nil {
		n = notify.New()
	}
	return &Cache{
		notifier: n,
		entries:  make(map[string][]models.TableDescriptor),
		gen:      make(map[string]uint64),
	}
}

// GetTables returns the cached list for connectionID, calling fetch on a
// miss. Concurrent misses for the same id share one fetch. A failed fetch
// caches nothing, so the next call fetches again.
func (c *Cache) GetTables(ctx context.Context, connectionID string, fetch FetchFunc) ([]models.TableDescriptor, error) {
	c.mu.Lock()
	if tables, ok := c.entries[connectionID]; ok {
		c.mu.Unlock()
		metrics.TableCacheLookups.WithLabelValues("hit").Inc()
		return slices.Clone(tables), nil
	}
	c.mu.Unlock()
	metrics.TableCacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(connectionID, func() (any, error) {
		c.mu.Lock()
		if tables, ok := c.entries[connectionID]; ok {
			c.mu.Unlock()
			return tables, nil
		}
		gen := c.gen[connectionID]
		c.mu.Unlock()

		logger.Debug("Fetching table list", "connection_id", connectionID)
		tables, err := fetch(ctx)
		if err != nil {
			logger.Warn("Table list fetch failed", "connection_id", connectionID, "error", err)
			return nil, err
		}
		if tables == nil {
			tables = []models.TableDescriptor{}
		}

		c.mu.Lock()
		if c.gen[connectionID] == gen {
			c.entries[connectionID] = tables
		}
		c.mu.Unlock()
		logger.Debug("Fetched table list", "connection_id", connectionID, "tables", len(tables))
		return tables, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]models.TableDescriptor)), nil
}

// Cached reports whether connectionID has an entry.
func (c *Cache) Cached(connectionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[connectionID]
	return ok
}

// Evict removes the entry for connectionID without notifying. It reports
// whether an entry existed. A fetch already in flight is detached, so the
// next GetTables starts a fresh one instead of joining it.
func (c *Cache) Evict(connectionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[connectionID]++
	c.group.Forget(connectionID)
	_, ok := c.entries[connectionID]
	delete(c.entries, connectionID)
	return ok
}

// Invalidate removes the entry for connectionID and, if one existed, fires
// a refresh notification. Safe to call for unknown ids.
func (c *Cache) Invalidate(connectionID string) bool {
	if !c.Evict(connectionID) {
		return false
	}
	logger.Debug("Table list invalidated", "connection_id", connectionID)
	c.notifier.Notify()
	return true
}
