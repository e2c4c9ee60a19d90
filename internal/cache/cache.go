// Package cache provides the cache-aside store for materialized external
// content such as channel profiles and video listings.
//
// Reads never trigger writes. Staleness is computed at read time from an
// entity-type TTL table and is advisory: callers decide whether a stale hit
// warrants a fresh ingestion job.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies a class of cached external content.
type EntityType string

// Supported entity types.
const (
	EntityChannel     EntityType = "channel"
	EntityVideo       EntityType = "video"
	EntityUserProfile EntityType = "user-profile"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityChannel, EntityVideo, EntityUserProfile:
		return true
	}
	return false
}

// DefaultTTLs is the per-type staleness horizon. A record older than its TTL
// is reported stale on read.
var DefaultTTLs = map[EntityType]time.Duration{
	EntityChannel:     24 * time.Hour,
	EntityVideo:       6 * time.Hour,
	EntityUserProfile: 12 * time.Hour,
}

// Entity is one materialized record, keyed by its natural external identifier
// (e.g. "youtube:@handle" for a channel).
type Entity struct {
	Type       EntityType      `json:"entity_type"`
	NaturalKey string          `json:"natural_key"`
	Payload    json.RawMessage `json:"payload"`
	CachedAt   time.Time       `json:"cached_at"`
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.Payload != nil {
		c.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return &c
}

// ErrEntityNotFound indicates no cached record exists for the key.
type ErrEntityNotFound struct {
	Type EntityType
	Key  string
}

func (e *ErrEntityNotFound) Error() string {
	return fmt.Sprintf("cached entity not found: %s/%s", e.Type, e.Key)
}

// Store is the persistence boundary for cached entities. Lookups that match
// nothing return (nil, nil).
type Store interface {
	// GetEntity retrieves a record by type and natural key.
	GetEntity(ctx context.Context, entityType EntityType, key string) (*Entity, error)

	// UpsertEntity patches the record matched by (type, key) or inserts a new
	// one. At most one live record exists per natural key per type.
	UpsertEntity(ctx context.Context, entity *Entity) error
}

// Result is a cache read outcome. IsStale is computed against the entity-type
// TTL at call time.
type Result struct {
	Entity  *Entity `json:"entity"`
	IsStale bool    `json:"is_stale"`
}

// Cache is the cache-aside layer over a Store.
type Cache struct {
	store Store
	ttls  map[EntityType]time.Duration
	now   func() time.Time
}

// New creates a cache with the given TTL table. A nil table uses DefaultTTLs.
func New(store Store, ttls map[EntityType]time.Duration) *Cache {
	if ttls == nil {
		ttls = DefaultTTLs
	}
	return &Cache{
		store: store,
		ttls:  ttls,
		now:   time.Now,
	}
}

// Get retrieves a cached entity and reports whether it is stale. Returns
// ErrEntityNotFound if no record exists.
func (c *Cache) Get(ctx context.Context, entityType EntityType, key string) (*Result, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("unknown entity type: %s", entityType)
	}

	entity, err := c.store.GetEntity(ctx, entityType, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	if entity == nil {
		return nil, &ErrEntityNotFound{Type: entityType, Key: key}
	}

	ttl, ok := c.ttls[entityType]
	stale := ok && c.now().UTC().Sub(entity.CachedAt) > ttl

	return &Result{Entity: entity, IsStale: stale}, nil
}

// Upsert writes a payload under (entityType, key), refreshing cachedAt.
func (c *Cache) Upsert(ctx context.Context, entityType EntityType, key string, payload json.RawMessage) error {
	if !entityType.Valid() {
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
	if key == "" {
		return fmt.Errorf("natural key must not be empty")
	}

	entity := &Entity{
		Type:       entityType,
		NaturalKey: key,
		Payload:    payload,
		CachedAt:   c.now().UTC(),
	}
	if err := c.store.UpsertEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to upsert cache entity: %w", err)
	}
	return nil
}
