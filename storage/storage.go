// Package storage provides the durable record stores backing draft autosave.
// Each store holds opaque values under string keys; a value is replaced
// wholesale on every write. Drivers: memory (tests), fs (default, dev),
// sqlite, postgres and s3 (S3 / MinIO compatible).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/giygas/medreport/interfaces"
)

// Driver identifies a record store backend
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverFS       Driver = "fs"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverS3       Driver = "s3"
)

// DraftKey is the fixed application key of the saved draft
const DraftKey = "medicalReportDemo"

var (
	// ErrNotFound is returned by Get when no record exists for the key
	ErrNotFound = errors.New("storage: record not found")
	// ErrInvalidKey is returned for keys that are empty or try to escape their namespace
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ProfileKey returns the draft record key of one browser profile
func ProfileKey(profileID string) string {
	return path.Join("profiles", profileID, DraftKey)
}

// Options selects and configures a backend
type Options struct {
	Driver      Driver
	FSRoot      string // fs: root directory (default ./draftdata)
	SQLitePath  string // sqlite: database file (default drafts.db)
	DatabaseURL string // postgres: DSN
	S3          S3Config
}

// Open builds the record store selected by opts.Driver
func Open(ctx context.Context, opts Options) (interfaces.RecordStore, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFS, "":
		return NewFilesystem(opts.FSRoot)
	case DriverSQLite:
		return NewSQLite(ctx, opts.SQLitePath)
	case DriverPostgres:
		return NewPostgres(ctx, opts.DatabaseURL)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}

// sanitizeKey ensures key doesn't escape its namespace and forbids absolute paths
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: key contains '..'", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: absolute or non-slash key", ErrInvalidKey)
	}
	return path.Clean(key), nil
}
