// Package core defines the object-store abstractions the semantic editing
// engine persists through: drafts, published snapshots, history, and the
// change log all live behind this contract.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete object storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
	// DriverSQLite represents an embedded sqlite-file implementation.
	DriverSQLite Driver = "sqlite" // single-file embedded store
	// DriverPostgres represents a PostgreSQL-backed implementation.
	DriverPostgres Driver = "postgres" // shared server-backed store
)

// PutOptions specifies optional parameters for Put and PutIfAbsent.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store provides a thin S3-like abstraction used by higher layers.
//
// Put replaces any existing object at key; implementations must make the
// replacement atomic (write-to-temp-then-rename or transactional upsert)
// so readers observe either the old or the new object, never a partial
// write. PutIfAbsent fails when the key already exists and backs the
// immutable archive keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	PutIfAbsent(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is returned by Get/Head when no object exists at the key.
var ErrNotFound = errors.New("objectstore: not found")

// ErrExists is returned by PutIfAbsent when the key is already taken.
var ErrExists = errors.New("objectstore: already exists")
