package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mathewevviai/diala-sub005/internal/cache"
)

var _ cache.Store = (*DB)(nil)

// GetEntity retrieves a cached record by type and natural key, or (nil, nil)
// if absent
func (db *DB) GetEntity(ctx context.Context, entityType cache.EntityType, key string) (*cache.Entity, error) {
	var e cache.Entity
	err := db.pool.QueryRow(ctx,
		`SELECT entity_type, natural_key, payload, cached_at
		 FROM cache_entities WHERE entity_type = $1 AND natural_key = $2`,
		entityType, key,
	).Scan(&e.Type, &e.NaturalKey, &e.Payload, &e.CachedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entity: %w", err)
	}
	return &e, nil
}

// UpsertEntity patches the record matched by (type, key) or inserts a new one
func (db *DB) UpsertEntity(ctx context.Context, entity *cache.Entity) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO cache_entities (entity_type, natural_key, payload, cached_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_type, natural_key) DO UPDATE SET payload = $3, cached_at = $4`,
		entity.Type, entity.NaturalKey, entity.Payload, entity.CachedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entity: %w", err)
	}
	return nil
}
