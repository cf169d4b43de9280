package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunStore persists records in a Postgres kv table. Intended for deployments
// where directory and guard state must survive a restart; the single-instance
// assumption still applies.
type BunStore struct {
	db *bun.DB
}

type kvEntry struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type BunConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

func NewBunStore(cfg BunConfig) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}, nil
}

// Migrate creates the kv table if it does not exist yet.
func (b *BunStore) Migrate(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*kvEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create kv_entries table: %w", err)
	}
	return nil
}

func (b *BunStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}

	entry := new(kvEntry)
	err := b.db.NewSelect().
		Model(entry).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select kv key=%s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (b *BunStore) Set(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	entry := &kvEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := b.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert kv key=%s: %w", key, err)
	}
	return nil
}

func (b *BunStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	_, err := b.db.NewDelete().
		Model((*kvEntry)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete kv key=%s: %w", key, err)
	}
	return nil
}

func (b *BunStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.NewSelect().
		Model((*kvEntry)(nil)).
		Column("key").
		Where("key LIKE ?", escapeLike(prefix)+"%").
		Order("key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("list kv prefix=%s: %w", prefix, err)
	}
	return keys, nil
}

func (b *BunStore) Close() error {
	return b.db.Close()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
