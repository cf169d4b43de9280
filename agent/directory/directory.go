package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	contractx "github.com/calldeck/calldeck/agent/contract"
	statex "github.com/calldeck/calldeck/agent/state"
)

// Entry maps a business to the phone number a search backend reported for it.
// Phone is immutable once recorded; repeated searches only refresh LastSeen,
// which keeps re-searching additive instead of destructive.
type Entry struct {
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	LastSeen   time.Time `json:"last_seen"`
}

// PhoneDirectory is the per-user accumulating name->phone index.
type PhoneDirectory struct {
	store statex.Store
	now   func() time.Time
}

var _ contractx.PhoneDirectory = (*PhoneDirectory)(nil)

func New(store statex.Store) (*PhoneDirectory, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	return &PhoneDirectory{
		store: store,
		now:   time.Now,
	}, nil
}

// Record inserts every result that carries a phone number. Known business ids
// only get their LastSeen refreshed.
func (d *PhoneDirectory) Record(ctx context.Context, userID string, results []contractx.SearchResult) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}

	for _, res := range results {
		if strings.TrimSpace(res.Phone) == "" || strings.TrimSpace(res.ID) == "" {
			continue
		}

		key := statex.DirectoryKey(userID, res.ID)
		existing, ok, err := statex.GetJSON[Entry](ctx, d.store, key)
		if err != nil {
			return err
		}

		if ok {
			existing.LastSeen = d.now().UTC()
			if err := statex.SetJSON(ctx, d.store, key, existing); err != nil {
				return err
			}
			continue
		}

		entry := Entry{
			BusinessID: res.ID,
			Name:       res.Name,
			Phone:      res.Phone,
			LastSeen:   d.now().UTC(),
		}
		if err := statex.SetJSON(ctx, d.store, key, entry); err != nil {
			return err
		}
	}
	return nil
}

// Resolve finds a phone for a business name. Both sides are normalized and a
// containment match in either direction counts; the first hit wins. No ranking
// and no ambiguity resolution.
func (d *PhoneDirectory) Resolve(ctx context.Context, userID, name string) (string, bool, error) {
	query := normalizeName(name)
	if query == "" {
		return "", false, nil
	}

	keys, err := d.store.List(ctx, statex.DirectoryPrefix(userID))
	if err != nil {
		return "", false, err
	}

	for _, key := range keys {
		entry, ok, err := statex.GetJSON[Entry](ctx, d.store, key)
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}
		stored := normalizeName(entry.Name)
		if stored == "" {
			continue
		}
		if strings.Contains(stored, query) || strings.Contains(query, stored) {
			return entry.Phone, true, nil
		}
	}
	return "", false, nil
}

// normalizeName lowercases and strips everything that is not a letter or digit.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
