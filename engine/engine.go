package engine

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:". Every connection of an in-memory pool sees its
// own database, so Open limits such pools to a single connection. The vec_*
// functions are registered first so every connection of the pool sees them.
func Open(dsn string) (*sql.DB, error) {
	if err := RegisterVectorFunctions(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open %q: %w", dsn, err)
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
