// Package sqlite implements store.Store on an embedded SQLite database
// through database/sql and the pure-Go modernc.org/sqlite driver. It is the
// default backend for on-device deployments.
//
// Either let the store open its own database:
//
//	s, err := sqlite.Open(ctx, filepath.Join(dir, "backlog.db"))
//	defer s.Close()
//
// or hand it a *sql.DB you own; in that case Close leaves the handle open:
//
//	db, _ := sql.Open("sqlite", dsn)
//	s := sqlite.New(db)
//	err := s.Migrate(ctx)
package sqlite
