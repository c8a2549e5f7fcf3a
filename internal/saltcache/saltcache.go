// Package saltcache provides the process-wide, daily-rotated anonymization
// salt used by the anonymize_user preprocessor (§4.2, §5). It is modeled on
// the teacher's internal/cache.Cache (TTL entries, background cleanup) but
// narrowed to exactly the one key this pipeline needs: "today's salt", with
// single-flight generation so concurrent indexer workers never race to
// create two different salts for the same UTC day.
package saltcache

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const saltSize = 32

// Cache hands out a 32-byte random salt, one per UTC calendar day, generated
// lazily on first use and cached for 24h. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	day     string // YYYY-MM-DD the cached salt belongs to
	salt    []byte
	group   singleflight.Group
	nowFunc func() time.Time
}

// New creates an empty salt cache. Salts are generated on first Salt() call.
func New() *Cache {
	return &Cache{nowFunc: time.Now}
}

// Salt returns the current UTC day's salt, generating and caching one via
// single-flight if this is the first call of the day or the process just
// started. Concurrent callers in the same day all observe the same bytes.
func (c *Cache) Salt() ([]byte, error) {
	today := c.nowFunc().UTC().Format("2006-01-02")

	c.mu.RLock()
	if c.day == today && c.salt != nil {
		s := c.salt
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(today, func() (interface{}, error) {
		c.mu.RLock()
		if c.day == today && c.salt != nil {
			s := c.salt
			c.mu.RUnlock()
			return s, nil
		}
		c.mu.RUnlock()

		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate daily salt: %w", err)
		}

		c.mu.Lock()
		c.day = today
		c.salt = salt
		c.mu.Unlock()
		return salt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
