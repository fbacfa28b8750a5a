// Package postgres is a store.Store on PostgreSQL through a pgx connection
// pool.
//
// Tables are created by InitSchema (New calls it). Messages and documents
// reference their session with ON DELETE CASCADE, and a message insert
// updates the session counters in the same statement.
//
// The store only needs the DBPool interface, so tests run it against
// github.com/pashagolub/pgxmock/v3 through NewWithPool.
package postgres
