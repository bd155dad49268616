package storage

import (
	"context"

	"github.com/giygas/medreport/interfaces"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ interfaces.RecordStore = (*SQLite)(nil)

var sqliteDialect = dialect{
	driver:    DriverSQLite,
	sqlDriver: "sqlite",
	ddl: `CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	get: `SELECT payload FROM records WHERE key = ?`,
	put: `INSERT INTO records(key, payload, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
	del: `DELETE FROM records WHERE key = ?`,
}

// SQLite stores records in a single sqlite database file
type SQLite struct {
	*sqlStore
}

// NewSQLite opens (or creates) the database at path
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "drafts.db"
	}
	s, err := openSQL(ctx, sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialise through one connection
	s.db.SetMaxOpenConns(1)
	return &SQLite{sqlStore: s}, nil
}
