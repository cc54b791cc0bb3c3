// Package presence tracks which users currently hold a live connection to
// this process. The in-memory map is the authority; an optional Redis hash
// mirrors it for operational visibility. Presence is per-process and lost on
// restart: it is not a cluster-wide view.
package presence

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const mirrorKey = "chat:online_users"

// Key builds the registry key for one identity.
func Key(kind string, userID uint64) string {
	return fmt.Sprintf("%s:%d", kind, userID)
}

type Registry struct {
	mu     sync.RWMutex
	online map[string]map[string]struct{} // user key -> connection ids

	rdb *redis.Client // optional mirror, best-effort only
}

// NewRegistry builds a process-scoped registry. rdb may be nil.
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		online: make(map[string]map[string]struct{}),
		rdb:    rdb,
	}
}

// Add records a connection for the identity. The first connection flips the
// user online and mirrors the entry to Redis.
func (r *Registry) Add(ctx context.Context, userKey, connID string) {
	r.mu.Lock()
	conns, ok := r.online[userKey]
	if !ok {
		conns = make(map[string]struct{})
		r.online[userKey] = conns
	}
	conns[connID] = struct{}{}
	first := len(conns) == 1
	r.mu.Unlock()

	if first && r.rdb != nil {
		if err := r.rdb.HSet(ctx, mirrorKey, userKey, time.Now().Unix()).Err(); err != nil {
			log.Printf("presence: redis mirror add %s: %v", userKey, err)
			return
		}
		r.rdb.Expire(ctx, mirrorKey, 24*time.Hour)
	}
}

// Remove drops one connection; the identity goes offline when its last
// connection is gone.
func (r *Registry) Remove(ctx context.Context, userKey, connID string) {
	r.mu.Lock()
	conns, ok := r.online[userKey]
	if ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.online, userKey)
		}
	}
	last := ok && len(conns) == 0
	r.mu.Unlock()

	if last && r.rdb != nil {
		if err := r.rdb.HDel(ctx, mirrorKey, userKey).Err(); err != nil {
			log.Printf("presence: redis mirror remove %s: %v", userKey, err)
		}
	}
}

func (r *Registry) IsOnline(userKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online[userKey]) > 0
}

// Online returns a snapshot of every online user key.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.online))
	for k := range r.online {
		keys = append(keys, k)
	}
	return keys
}
