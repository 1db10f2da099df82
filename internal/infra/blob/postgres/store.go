// Package postgres implements the object Store on a PostgreSQL table via
// database/sql with the pgx stdlib driver.
package postgres

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx with database/sql

	"usdmcore/internal/blob/core"
)

// Store implements core.Store backed by a PostgreSQL table.
type Store struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS objects (
	key TEXT PRIMARY KEY,
	payload BYTEA NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	etag TEXT NOT NULL,
	size BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// New opens a postgres-backed object store using the supplied DSN.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create objects table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() core.Driver { return core.DriverPostgres }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	return s.write(ctx, key, r, opts, true)
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	return s.write(ctx, key, r, opts, false)
}

func (s *Store) write(ctx context.Context, key string, r io.Reader, opts core.PutOptions, overwrite bool) (core.Info, error) {
	if key == "" {
		return core.Info{}, fmt.Errorf("empty key")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(b)
	etag := hex.EncodeToString(sum[:])
	var meta any
	if len(opts.Metadata) > 0 {
		raw, err := json.Marshal(opts.Metadata)
		if err != nil {
			return core.Info{}, err
		}
		meta = raw
	}
	now := time.Now().UTC()
	stmt := `INSERT INTO objects (key, payload, content_type, metadata, etag, size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET payload=EXCLUDED.payload, content_type=EXCLUDED.content_type,
			metadata=EXCLUDED.metadata, etag=EXCLUDED.etag, size=EXCLUDED.size, updated_at=EXCLUDED.updated_at`
	if !overwrite {
		stmt = `INSERT INTO objects (key, payload, content_type, metadata, etag, size, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
	}
	if _, err := s.db.ExecContext(ctx, stmt, key, b, opts.ContentType, meta, etag, int64(len(b)), now); err != nil {
		var pgErr *pgconn.PgError
		if !overwrite && errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return core.Info{}, fmt.Errorf("object %s: %w", key, core.ErrExists)
		}
		return core.Info{}, err
	}
	return core.Info{Key: key, Size: int64(len(b)), ContentType: opts.ContentType, ETag: etag, Metadata: opts.Metadata, LastModified: now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	var payload []byte
	info, err := s.scanRow(ctx, key, &payload)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	return s.scanRow(ctx, key, nil)
}

func (s *Store) scanRow(ctx context.Context, key string, payload *[]byte) (core.Info, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, content_type, metadata, etag, size, updated_at FROM objects WHERE key = $1`, key)
	var (
		raw       []byte
		ct        string
		meta      []byte
		etag      string
		size      int64
		updatedAt time.Time
	)
	if err := row.Scan(&raw, &ct, &meta, &etag, &size, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Info{}, fmt.Errorf("object %s: %w", key, core.ErrNotFound)
		}
		return core.Info{}, err
	}
	if payload != nil {
		*payload = raw
	}
	md, err := decodeMetadata(meta)
	if err != nil {
		return core.Info{}, err
	}
	return core.Info{Key: key, Size: size, ContentType: ct, ETag: etag, Metadata: md, LastModified: updatedAt.UTC()}, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = $1`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, content_type, metadata, etag, size, updated_at FROM objects WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var (
			key, ct, etag string
			meta          []byte
			size          int64
			updatedAt     time.Time
		)
		if err := rows.Scan(&key, &ct, &meta, &etag, &size, &updatedAt); err != nil {
			return nil, err
		}
		md, err := decodeMetadata(meta)
		if err != nil {
			return nil, err
		}
		infos = append(infos, core.Info{Key: key, Size: size, ContentType: ct, ETag: etag, Metadata: md, LastModified: updatedAt.UTC()})
	}
	return infos, rows.Err()
}

func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var md map[string]string
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, err
	}
	return md, nil
}
