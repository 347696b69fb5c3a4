package utils

import (
	"time"
)

// PruneMemoryStores drops expired entries from the in-memory fallbacks of the token
// blacklist and the login replay guard. It returns how many entries were removed.
// Redis-backed entries expire on their own.
func PruneMemoryStores(now time.Time) int {
	removed := 0

	blacklistMu.Lock()
	for id, expiresAt := range blacklist {
		if now.After(expiresAt) {
			delete(blacklist, id)
			removed++
		}
	}
	blacklistMu.Unlock()

	usedLoginsMu.Lock()
	for hash, expiresAt := range usedLogins {
		if !now.Before(expiresAt) {
			delete(usedLogins, hash)
			removed++
		}
	}
	usedLoginsMu.Unlock()

	return removed
}
