package clientdata

import "time"

// TTL constants for cached upstream responses.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLQuote is deliberately shorter than the view poll interval so a
	// scheduled refresh always reaches the upstream, while burst requests
	// in between (view re-entry, SSE reconnect) are served from cache.
	TTLQuote = 5 * time.Second
)
