// Package blob re-exports core object-store abstractions for stable
// internal imports. Higher layers depend on blob.Store; driver packages
// stay behind this facade.
package blob

import (
	"usdmcore/internal/blob/core"
)

type (
	// Driver identifies an object store backend driver.
	Driver = core.Driver
	// PutOptions configures an object write.
	PutOptions = core.PutOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface for object storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
	// DriverSQLite is the embedded sqlite driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the PostgreSQL driver.
	DriverPostgres = core.DriverPostgres
)

// ErrNotFound indicates no object exists at the requested key.
var ErrNotFound = core.ErrNotFound

// ErrExists indicates a PutIfAbsent hit an occupied key.
var ErrExists = core.ErrExists
