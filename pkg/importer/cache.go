package importer

import (
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// identityCache remembers the entities resolved during one run, keyed by
// external identity. The external service occasionally repeats a record
// across pages; the cache turns the repeat into an update of the row created
// earlier in the same run instead of a second insert.
type identityCache struct {
	mu      sync.RWMutex
	entries map[string]*models.Entity
}

func newIdentityCache() *identityCache {
	return &identityCache{
		entries: make(map[string]*models.Entity),
	}
}

func (c *identityCache) get(externalID string) (*models.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entity, ok := c.entries[externalID]
	return entity, ok
}

func (c *identityCache) put(externalID string, entity *models.Entity) {
	if externalID == "" || entity == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[externalID] = entity
}
