package worklife

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestFileKVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	defer kv.Close()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, StorageKey, `{"v":1}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := kv.Get(ctx, StorageKey)
	if err != nil || !ok || value != `{"v":1}` {
		t.Fatalf("Get = %q ok=%v err=%v", value, ok, err)
	}

	if err := kv.Set(ctx, StorageKey, `{"v":2}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _, _ = kv.Get(ctx, StorageKey)
	if value != `{"v":2}` {
		t.Fatalf("after overwrite = %q", value)
	}

	if err := kv.Remove(ctx, StorageKey); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, StorageKey); ok {
		t.Fatal("key survived Remove")
	}
	// Removing again is not an error.
	if err := kv.Remove(ctx, StorageKey); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestFileKVRejectsBlankKey(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	defer kv.Close()
	if err := kv.Set(context.Background(), "   ", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank key error = %v, want ErrInvalidInput", err)
	}
}

func TestFileKVKeyPathSanitizes(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	defer kv.Close()
	got := kv.KeyPath("a/b:c")
	want := filepath.Join(dir, "a_b_c.json")
	if got != want {
		t.Fatalf("KeyPath = %q, want %q", got, want)
	}
}

func TestMemoryKVRoundTrip(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	if err := kv.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || value != "v" {
		t.Fatalf("Get = %q ok=%v err=%v", value, ok, err)
	}
	if err := kv.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Fatal("key survived Remove")
	}
}

func TestOpenKVSchemes(t *testing.T) {
	kv, err := OpenKV("memory://")
	if err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
	if _, ok := kv.(*MemoryKV); !ok {
		t.Fatalf("memory dsn produced %T", kv)
	}
	kv.Close()

	dir := t.TempDir()
	kv, err = OpenKV("file://" + dir)
	if err != nil {
		t.Fatalf("file dsn: %v", err)
	}
	if _, ok := kv.(*FileKV); !ok {
		t.Fatalf("file dsn produced %T", kv)
	}
	kv.Close()

	// A bare path selects the file backend too.
	kv, err = OpenKV(dir)
	if err != nil {
		t.Fatalf("bare path dsn: %v", err)
	}
	if _, ok := kv.(*FileKV); !ok {
		t.Fatalf("bare path produced %T", kv)
	}
	kv.Close()

	if _, err := OpenKV("mysql://u:p@host/db"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("mysql error = %v, want ErrNotImplemented", err)
	}
	if _, err := OpenKV("ftp://host/x"); err == nil {
		t.Fatal("unsupported scheme accepted")
	}
	if _, err := OpenKV("   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty dsn error = %v, want ErrInvalidInput", err)
	}
}

func TestRegisterKVFactory(t *testing.T) {
	called := false
	RegisterKVFactory("testfake", func(dsn string) (KVStore, error) {
		called = true
		return NewMemoryKV(), nil
	})
	kv, err := OpenKV("testfake://whatever")
	if err != nil {
		t.Fatalf("custom factory: %v", err)
	}
	defer kv.Close()
	if !called {
		t.Fatal("registered factory not invoked")
	}
}

func TestSelectDSN(t *testing.T) {
	if got := SelectDSN("token", "postgres://cloud", "file://local"); got != "postgres://cloud" {
		t.Fatalf("with token = %q, want cloud", got)
	}
	if got := SelectDSN("", "postgres://cloud", "file://local"); got != "file://local" {
		t.Fatalf("without token = %q, want local", got)
	}
	if got := SelectDSN("token", "   ", "file://local"); got != "file://local" {
		t.Fatalf("blank cloud dsn = %q, want local", got)
	}
	if got := SelectDSN("  token  ", " postgres://cloud ", "x"); got != "postgres://cloud" {
		t.Fatalf("trimming = %q", got)
	}
}
