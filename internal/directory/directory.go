// Package directory implements the read-through user directory cache. It
// bounds the number of backing-store lookups per list render to the number
// of distinct users instead of the number of items.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"huddle/internal/domain"
)

const (
	// DefaultTTL is the upper bound on entry staleness. Consumers must
	// tolerate directory data up to this old.
	DefaultTTL = 30 * time.Second

	fetchTimeout = 3 * time.Second
)

// Entry is the cached view of a user exposed to the messaging core.
type Entry struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Avatar       *string   `json:"avatar,omitempty"`
	IsRegistered bool      `json:"is_registered"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
}

type cached struct {
	entry     *Entry
	fetchedAt time.Time
}

// Cache is a read-through cache over the user repository. Reads are shared;
// Invalidate is the single-writer path used by anything that mutates a user
// record.
type Cache struct {
	users domain.UserRepository
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[int64]cached

	group singleflight.Group
}

func New(users domain.UserRepository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		users:   users,
		ttl:     ttl,
		entries: make(map[int64]cached),
	}
}

// Resolve returns the directory entry for the user, fetching from the
// backing store on miss or staleness. On a backing-store error the
// last-known value is returned if present (stale-but-available); otherwise
// DIRECTORY_UNAVAILABLE propagates.
func (c *Cache) Resolve(ctx context.Context, userID int64) (*Entry, error) {
	c.mu.RLock()
	got, ok := c.entries[userID]
	c.mu.RUnlock()

	if ok && time.Since(got.fetchedAt) <= c.ttl {
		return got.entry, nil
	}

	entry, err := c.fetch(ctx, userID)
	if err == nil {
		return entry, nil
	}
	if errors.Is(err, errNotFound) {
		return nil, domain.NotFound(fmt.Sprintf("user %d not found", userID))
	}
	if ok {
		return got.entry, nil
	}
	return nil, domain.DirectoryUnavailable(err)
}

// ResolveMany resolves a set of user ids best-effort: users that cannot be
// resolved are simply absent from the result.
func (c *Cache) ResolveMany(ctx context.Context, userIDs []int64) map[int64]*Entry {
	res := make(map[int64]*Entry, len(userIDs))
	for _, id := range userIDs {
		if _, ok := res[id]; ok {
			continue
		}
		if e, err := c.Resolve(ctx, id); err == nil {
			res[id] = e
		}
	}
	return res
}

// Invalidate drops the cached entry for the user. Advisory: a missed call
// only means staleness up to the TTL, never incorrect membership decisions.
func (c *Cache) Invalidate(userID int64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

var errNotFound = errors.New("directory: user not found")

// fetch loads the user from the backing store and repopulates the cache.
// Concurrent fetches for the same user are collapsed into one.
func (c *Cache) fetch(ctx context.Context, userID int64) (*Entry, error) {
	v, err, _ := c.group.Do(fmt.Sprintf("%d", userID), func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		u, err := c.users.GetByID(fctx, userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, errNotFound
		}

		entry := &Entry{
			UserID:       u.ID,
			Username:     u.Username,
			DisplayName:  u.DisplayName,
			Avatar:       u.Avatar,
			IsRegistered: u.IsRegistered,
			IsOnline:     u.IsOnline,
			LastSeen:     u.LastSeen,
		}

		c.mu.Lock()
		c.entries[userID] = cached{entry: entry, fetchedAt: time.Now()}
		c.mu.Unlock()

		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}
