package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// ReadBytes returns the raw contents of the object at key, or ErrNotFound.
func ReadBytes(ctx context.Context, store Store, key string) ([]byte, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// ReadJSON decodes the object at key into v. Missing objects and corrupt
// JSON both report ErrNotFound: readers must handle absence, and a corrupt
// file is indistinguishable from an absent one for them.
func ReadJSON(ctx context.Context, store Store, key string, v any) error {
	b, err := ReadBytes(ctx, store, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Join(ErrNotFound, err)
	}
	return nil
}

// WriteJSON marshals v (indented, stable field order) and atomically writes
// it at key.
func WriteJSON(ctx context.Context, store Store, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = store.Put(ctx, key, bytes.NewReader(b), PutOptions{ContentType: "application/json"})
	return err
}

// Exists reports whether an object is present at key.
func Exists(ctx context.Context, store Store, key string) (bool, error) {
	_, err := store.Head(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
