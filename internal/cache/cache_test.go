package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGet_NotFound tests lookup of an absent entity
func TestGet_NotFound(t *testing.T) {
	c := New(NewMemStore(), nil)

	_, err := c.Get(context.Background(), EntityChannel, "youtube:@missing")
	var nf *ErrEntityNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, EntityChannel, nf.Type)
	assert.Equal(t, "youtube:@missing", nf.Key)
}

// TestGet_StalenessBoundary tests isStale on both sides of the TTL
func TestGet_StalenessBoundary(t *testing.T) {
	store := NewMemStore()
	c := New(store, map[EntityType]time.Duration{EntityChannel: 24 * time.Hour})
	now := time.Now().UTC()
	c.now = func() time.Time { return now }

	payload, _ := json.Marshal(map[string]string{"name": "Acme"})

	tests := []struct {
		name      string
		cachedAt  time.Time
		wantStale bool
	}{
		{"fresh now", now, false},
		{"exactly at TTL", now.Add(-24 * time.Hour), false},
		{"one second past TTL", now.Add(-24*time.Hour - time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpsertEntity(context.Background(), &Entity{
				Type:       EntityChannel,
				NaturalKey: "youtube:@acme",
				Payload:    payload,
				CachedAt:   tt.cachedAt,
			})
			require.NoError(t, err)

			result, err := c.Get(context.Background(), EntityChannel, "youtube:@acme")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStale, result.IsStale)
		})
	}
}

// TestUpsert_PatchRefreshesCachedAt tests upsert semantics
func TestUpsert_PatchRefreshesCachedAt(t *testing.T) {
	store := NewMemStore()
	c := New(store, nil)
	now := time.Now().UTC()

	c.now = func() time.Time { return now.Add(-48 * time.Hour) }
	first, _ := json.Marshal(map[string]string{"name": "Old"})
	require.NoError(t, c.Upsert(context.Background(), EntityChannel, "youtube:@acme", first))

	result, err := c.Get(context.Background(), EntityChannel, "youtube:@acme")
	require.NoError(t, err)
	assert.True(t, result.IsStale)

	c.now = func() time.Time { return now }
	second, _ := json.Marshal(map[string]string{"name": "New"})
	require.NoError(t, c.Upsert(context.Background(), EntityChannel, "youtube:@acme", second))

	result, err = c.Get(context.Background(), EntityChannel, "youtube:@acme")
	require.NoError(t, err)
	assert.False(t, result.IsStale)
	assert.JSONEq(t, string(second), string(result.Entity.Payload))
	assert.Equal(t, now, result.Entity.CachedAt)
}

// TestUpsert_OneLiveRecordPerKey tests that upserting twice leaves one record
func TestUpsert_OneLiveRecordPerKey(t *testing.T) {
	store := NewMemStore()
	c := New(store, nil)

	payload, _ := json.Marshal(map[string]int{"views": 1})
	require.NoError(t, c.Upsert(context.Background(), EntityVideo, "tiktok:v1", payload))
	require.NoError(t, c.Upsert(context.Background(), EntityVideo, "tiktok:v1", payload))

	assert.Len(t, store.entities, 1)
}

// TestUpsert_Validation tests rejection of malformed upserts
func TestUpsert_Validation(t *testing.T) {
	c := New(NewMemStore(), nil)

	err := c.Upsert(context.Background(), EntityType("bogus"), "k", nil)
	assert.Error(t, err)

	err = c.Upsert(context.Background(), EntityChannel, "", nil)
	assert.Error(t, err)
}

// TestGet_TypeIsolation tests that types don't collide on the same key
func TestGet_TypeIsolation(t *testing.T) {
	c := New(NewMemStore(), nil)

	payload, _ := json.Marshal(map[string]string{"x": "y"})
	require.NoError(t, c.Upsert(context.Background(), EntityChannel, "shared", payload))

	_, err := c.Get(context.Background(), EntityVideo, "shared")
	var nf *ErrEntityNotFound
	assert.ErrorAs(t, err, &nf)
}
