package storage

import (
	"context"

	"github.com/giygas/medreport/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ interfaces.RecordStore = (*Postgres)(nil)

const defaultPostgresDSN = "postgres://localhost/medreport?sslmode=disable"

var postgresDialect = dialect{
	driver:    DriverPostgres,
	sqlDriver: "pgx",
	ddl: `CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	get: `SELECT payload FROM records WHERE key = $1`,
	put: `INSERT INTO records(key, payload, updated_at) VALUES($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
	del: `DELETE FROM records WHERE key = $1`,
}

// Postgres stores records in a Postgres table
type Postgres struct {
	*sqlStore
}

// NewPostgres connects using dsn (falls back to a localhost default)
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	s, err := openSQL(ctx, postgresDialect, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{sqlStore: s}, nil
}
