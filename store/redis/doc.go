// Package redis is a store.Store on Redis through github.com/redis/go-redis/v9.
//
// Session records are JSON strings updated under WATCH, so concurrent saves
// to one session never lose a counter update. An optional TTL expires idle
// sessions; ListSessions drops index entries whose record has expired.
package redis
