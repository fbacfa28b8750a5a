// Package sqlite is a store.Store on a single SQLite database file, using
// github.com/mattn/go-sqlite3 (cgo).
//
// Foreign keys are switched on in the DSN so deleting a session removes its
// messages and documents. Messages and documents keep an autoincrement
// sequence column that gives their insertion order.
//
//	s, err := sqlite.New(ctx, sqlite.Options{Path: "researchchat.db"})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
package sqlite
