package state

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "guard:ch-1", []byte(`{"held":true}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, ok, err := store.Get(ctx, "guard:ch-1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(raw) != `{"held":true}` {
		t.Fatalf("unexpected value: %s", raw)
	}

	if err := store.Delete(ctx, "guard:ch-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, err := store.Get(ctx, "guard:ch-1"); err != nil || ok {
		t.Fatalf("deleted key still present: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "  "); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("Get() error = %v, want ErrEmptyKey", err)
	}
	if err := store.Set(ctx, "", nil); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("Set() error = %v, want ErrEmptyKey", err)
	}
	if err := store.Delete(ctx, ""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("Delete() error = %v, want ErrEmptyKey", err)
	}
}

func TestMemoryStoreListFiltersByPrefixSorted(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"poll:ch-1:a2", "poll:ch-1:a1", "poll:ch-2:a1", "guard:ch-1"} {
		if err := store.Set(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
	}

	keys, err := store.List(ctx, "poll:ch-1:")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "poll:ch-1:a1" || keys[1] != "poll:ch-1:a2" {
		t.Fatalf("unexpected keys: %#v", keys)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("abc")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	raw[0] = 'z'

	again, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(again) != "abc" {
		t.Fatalf("stored value mutated: %s", again)
	}
}

type record struct {
	Name string `json:"name"`
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := SetJSON(ctx, store, "r1", record{Name: "tony"}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	got, ok, err := GetJSON[record](ctx, store, "r1")
	if err != nil || !ok {
		t.Fatalf("GetJSON() = %v, %v", ok, err)
	}
	if got.Name != "tony" {
		t.Fatalf("unexpected record: %#v", got)
	}

	if _, ok, err := GetJSON[record](ctx, store, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
}

func TestGetJSONCorruptPayload(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "bad", []byte("not json")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, _, err := GetJSON[record](ctx, store, "bad"); err == nil {
		t.Fatal("expected unmarshal error but got nil")
	}
}
