package blob

import (
	"context"
	"fmt"
	"os"

	fsdriver "usdmcore/internal/infra/blob/fs"
	memorydriver "usdmcore/internal/infra/blob/memory"
	pgdriver "usdmcore/internal/infra/blob/postgres"
	s3driver "usdmcore/internal/infra/blob/s3"
	sqlitedriver "usdmcore/internal/infra/blob/sqlite"
)

// Open selects a blob.Store implementation using environment variables.
//
//	USDMCORE_OBJECT_DRIVER: fs|s3|memory|sqlite|postgres (default fs)
//	USDMCORE_OBJECT_FS_ROOT: directory root when driver=fs (default ./objectdata)
//	USDMCORE_OBJECT_SQLITE_PATH: sqlite file when driver=sqlite
//	USDMCORE_OBJECT_POSTGRES_DSN: postgres DSN when driver=postgres
//	(S3 specific variables documented in the s3 driver)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("USDMCORE_OBJECT_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	return OpenDriver(ctx, Driver(driver))
}

// OpenDriver opens a specific driver, reading its own settings from the
// environment.
func OpenDriver(ctx context.Context, driver Driver) (Store, error) {
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("USDMCORE_OBJECT_FS_ROOT"))
	case DriverS3:
		return s3driver.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(os.Getenv("USDMCORE_OBJECT_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgres(os.Getenv("USDMCORE_OBJECT_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown object store driver %s", driver)
	}
}

// Filesystem is the fs-backed store; exposed so callers holding one can map
// keys to on-disk paths for the document watcher.
type Filesystem = fsdriver.Store

// NewFilesystem constructs a filesystem-backed blob.Store rooted at the provided path.
// Returns the concrete type so call sites that need Path() can keep it; everything
// else should depend on the Store interface.
func NewFilesystem(root string) (*Filesystem, error) {
	return fsdriver.New(root)
}

// NewMemory constructs an in-memory blob.Store for tests.
func NewMemory() Store {
	return memorydriver.New()
}

// NewSQLite constructs an sqlite-file-backed blob.Store.
func NewSQLite(path string) (Store, error) {
	return sqlitedriver.New(path)
}

// NewPostgres constructs a PostgreSQL-backed blob.Store.
func NewPostgres(dsn string) (Store, error) {
	return pgdriver.New(dsn)
}
