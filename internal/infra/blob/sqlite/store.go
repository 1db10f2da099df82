// Package sqlite implements the object Store on an embedded sqlite file,
// one row per object with the payload stored as a blob. Upserts run inside
// sqlite's own transaction, which gives the same reader guarantee as the
// fs driver's rename.
package sqlite

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
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"usdmcore/internal/blob/core"
)

// Store implements core.Store backed by a single sqlite file.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `CREATE TABLE IF NOT EXISTS objects (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '',
	etag TEXT NOT NULL,
	size INTEGER NOT NULL,
	updated_at TEXT NOT NULL
)`

// New opens (creating if needed) an sqlite-backed object store at path.
func New(path string) (*Store, error) {
	if path == "" {
		path = "usdmcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create objects table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() core.Driver { return core.DriverSQLite }

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
	meta, err := encodeMetadata(opts.Metadata)
	if err != nil {
		return core.Info{}, err
	}
	now := time.Now().UTC()
	stmt := `INSERT INTO objects (key, payload, content_type, metadata, etag, size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, content_type=excluded.content_type,
			metadata=excluded.metadata, etag=excluded.etag, size=excluded.size, updated_at=excluded.updated_at`
	if !overwrite {
		stmt = `INSERT INTO objects (key, payload, content_type, metadata, etag, size, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
	}
	if _, err := s.db.ExecContext(ctx, stmt, key, b, opts.ContentType, meta, etag, int64(len(b)), now.Format(time.RFC3339Nano)); err != nil {
		if !overwrite {
			if exists, checkErr := s.exists(ctx, key); checkErr == nil && exists {
				return core.Info{}, fmt.Errorf("object %s: %w", key, core.ErrExists)
			}
		}
		return core.Info{}, err
	}
	return core.Info{Key: key, Size: int64(len(b)), ContentType: opts.ContentType, ETag: etag, Metadata: opts.Metadata, LastModified: now}, nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
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
	row := s.db.QueryRowContext(ctx, `SELECT payload, content_type, metadata, etag, size, updated_at FROM objects WHERE key = ?`, key)
	var (
		raw       []byte
		ct, meta  string
		etag      string
		size      int64
		updatedAt string
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
	ts, _ := time.Parse(time.RFC3339Nano, updatedAt)
	return core.Info{Key: key, Size: size, ContentType: ct, ETag: etag, Metadata: md, LastModified: ts}, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key)
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
	rows, err := s.db.QueryContext(ctx, `SELECT key, content_type, metadata, etag, size, updated_at FROM objects WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var (
			key, ct, meta, etag, updatedAt string
			size                           int64
		)
		if err := rows.Scan(&key, &ct, &meta, &etag, &size, &updatedAt); err != nil {
			return nil, err
		}
		md, err := decodeMetadata(meta)
		if err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, core.Info{Key: key, Size: size, ContentType: ct, ETag: etag, Metadata: md, LastModified: ts})
	}
	return infos, rows.Err()
}

func encodeMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, err
	}
	return md, nil
}
