package utils

import (
	"context"
	"sync"
	"time"
)

const loginHashPrefix = "tg:login:"

var (
	usedLogins   = map[string]time.Time{}
	usedLoginsMu sync.Mutex
)

// ClaimLoginHash marks a signed Telegram login payload as used. It returns false when the
// same hash was already claimed within ttl, so a captured payload cannot be replayed.
func ClaimLoginHash(hash string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// Prefer Redis so every instance sees the claim
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := rc.SetNX(ctx, loginHashPrefix+hash, "1", ttl).Result(); err == nil {
			return ok
		}
	}
	// Fallback to in-memory (single-instance only)
	now := time.Now()
	usedLoginsMu.Lock()
	defer usedLoginsMu.Unlock()
	if expiresAt, ok := usedLogins[hash]; ok && now.Before(expiresAt) {
		return false
	}
	usedLogins[hash] = now.Add(ttl)
	return true
}
