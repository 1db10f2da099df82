package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestReadWriteJSON(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	in := map[string]any{"name": "value", "count": float64(3)}
	if err := WriteJSON(ctx, store, "doc.json", in); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]any
	if err := ReadJSON(ctx, store, "doc.json", &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["name"] != "value" || out["count"] != float64(3) {
		t.Fatalf("round trip mismatch %+v", out)
	}
}

func TestReadJSON_Missing(t *testing.T) {
	var out map[string]any
	err := ReadJSON(context.Background(), NewMemory(), "missing.json", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadJSON_CorruptReadsAsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if _, err := store.Put(ctx, "bad.json", bytes.NewReader([]byte("{broken")), PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var out map[string]any
	err := ReadJSON(ctx, store, "bad.json", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt JSON must read as ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	ok, err := Exists(ctx, store, "k")
	if err != nil || ok {
		t.Fatalf("absent: %v %v", ok, err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = Exists(ctx, store, "k")
	if err != nil || !ok {
		t.Fatalf("present: %v %v", ok, err)
	}
}

func TestOpenDriver_Unknown(t *testing.T) {
	if _, err := OpenDriver(context.Background(), Driver("bogus")); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
