// Package ratelimit implements a sliding-window rate limiter on top of the
// shared cache store's sorted-set primitives. Each identity key owns a
// sorted set whose members are individual requests scored by their
// Unix-millisecond timestamp; admission evicts entries older than the
// window, counts the survivors, and appends the new request.
//
// The eviction-count-insert sequence is not atomic across the backing-store
// calls. Concurrent requests against the same key can interleave the steps
// and over-admit near the boundary, bounded by the number of in-flight
// requests for that key. The limiter is approximate, not a hard guarantee.
//
// When the backing store is unreachable the limiter fails open: requests
// are admitted unconditionally rather than blocking traffic on an
// infrastructure outage.
package ratelimit
