package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	driver    Driver
	sqlDriver string
	ddl       string
	get       string
	put       string
	del       string
}

// sqlStore keeps one row per record in the records table
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func openSQL(ctx context.Context, d dialect, dsn string) (*sqlStore, error) {
	openMu.Lock()
	db, err := sqlOpen(d.sqlDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	if _, err := db.ExecContext(ctx, d.ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure records table: %w", err)
	}
	return &sqlStore{db: db, d: d}, nil
}

func (s *sqlStore) Driver() string { return string(s.d.driver) }

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = s.db.QueryRowContext(ctx, s.d.get, k).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	return payload, nil
}

func (s *sqlStore) Put(ctx context.Context, key string, value []byte) error {
	k, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.d.put, k, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	k, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.d.del, k); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration tests
func (s *sqlStore) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the function used to open SQL connections and
// returns a restore func. Tests use it to inject failing or stub databases.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
