package directory

import (
	"context"
	"testing"
	"time"

	contractx "github.com/calldeck/calldeck/agent/contract"
	statex "github.com/calldeck/calldeck/agent/state"
)

func newDirectory(t *testing.T) (*PhoneDirectory, *statex.MemoryStore) {
	t.Helper()
	store := statex.NewMemoryStore()
	dir, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return dir, store
}

func TestRecordAndResolve(t *testing.T) {
	t.Parallel()

	dir, _ := newDirectory(t)
	ctx := context.Background()

	err := dir.Record(ctx, "user-1", []contractx.SearchResult{
		{ID: "b1", Name: "Tony's Pizza", Phone: "+15551234567"},
		{ID: "b2", Name: "Golden Dragon", Phone: "+15559876543"},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	phone, ok, err := dir.Resolve(ctx, "user-1", "Tony's Pizza")
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v, %v", phone, ok, err)
	}
	if phone != "+15551234567" {
		t.Fatalf("unexpected phone: %s", phone)
	}
}

func TestResolveMatchesContainmentBothWays(t *testing.T) {
	t.Parallel()

	dir, _ := newDirectory(t)
	ctx := context.Background()

	if err := dir.Record(ctx, "user-1", []contractx.SearchResult{
		{ID: "b1", Name: "Tony's Pizza & Pasta", Phone: "+15551234567"},
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// Query shorter than the stored name.
	if _, ok, err := dir.Resolve(ctx, "user-1", "tonys pizza"); err != nil || !ok {
		t.Fatalf("short query should match: ok=%v err=%v", ok, err)
	}
	// Query longer than the stored name.
	if _, ok, err := dir.Resolve(ctx, "user-1", "Tony's Pizza & Pasta downtown"); err != nil || !ok {
		t.Fatalf("long query should match: ok=%v err=%v", ok, err)
	}
	// Unrelated name stays unresolved.
	if _, ok, err := dir.Resolve(ctx, "user-1", "Golden Dragon"); err != nil || ok {
		t.Fatalf("unrelated query must not match: ok=%v err=%v", ok, err)
	}
}

func TestRecordNeverOverwritesPhone(t *testing.T) {
	t.Parallel()

	dir, store := newDirectory(t)
	ctx := context.Background()

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	dir.now = func() time.Time { return first }
	if err := dir.Record(ctx, "user-1", []contractx.SearchResult{
		{ID: "b1", Name: "Tony's Pizza", Phone: "+15551234567"},
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	second := first.Add(2 * time.Hour)
	dir.now = func() time.Time { return second }
	if err := dir.Record(ctx, "user-1", []contractx.SearchResult{
		{ID: "b1", Name: "Tony's Pizza", Phone: "+15550000000"},
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entry, ok, err := statex.GetJSON[Entry](ctx, store, statex.DirectoryKey("user-1", "b1"))
	if err != nil || !ok {
		t.Fatalf("entry missing: ok=%v err=%v", ok, err)
	}
	if entry.Phone != "+15551234567" {
		t.Fatalf("phone must be immutable, got %s", entry.Phone)
	}
	if !entry.LastSeen.Equal(second) {
		t.Fatalf("LastSeen should refresh, got %v", entry.LastSeen)
	}
}

func TestRecordSkipsResultsWithoutPhoneOrID(t *testing.T) {
	t.Parallel()

	dir, store := newDirectory(t)
	ctx := context.Background()

	if err := dir.Record(ctx, "user-1", []contractx.SearchResult{
		{ID: "b1", Name: "No Phone Cafe", Phone: ""},
		{ID: "", Name: "No ID Cafe", Phone: "+15551111111"},
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no entries, store has %d", store.Len())
	}
}

func TestResolveScopedToUser(t *testing.T) {
	t.Parallel()

	dir, _ := newDirectory(t)
	ctx := context.Background()

	if err := dir.Record(ctx, "user-1", []contractx.SearchResult{
		{ID: "b1", Name: "Tony's Pizza", Phone: "+15551234567"},
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if _, ok, err := dir.Resolve(ctx, "user-2", "Tony's Pizza"); err != nil || ok {
		t.Fatalf("other user's directory must stay empty: ok=%v err=%v", ok, err)
	}
}
