// Package store persists chat sessions, their messages and the documents
// uploaded into them.
//
// The Store interface has four implementations:
//   - store/memory: maps behind a mutex, for tests and throwaway runs
//   - store/sqlite: a single database file through mattn/go-sqlite3
//   - store/postgres: a pgx connection pool
//   - store/redis: go-redis, one key per session plus message lists
//
// Every implementation keeps the session counters (message count, last user
// message, updated time) current as messages are saved, so listing sessions
// never reads message bodies. Lookups of unknown sessions, messages or
// documents return ErrNotFound, possibly wrapped.
//
// The storetest package holds the behavior suite every implementation runs
// in its tests.
package store
