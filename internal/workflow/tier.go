package workflow

import (
	"context"

	"github.com/google/uuid"
)

// Tier is a user's subscription level. It determines the workflow byte
// ceiling, retention window, and allowed export formats.
type Tier string

// Subscription tiers.
const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Limits are the resource ceilings for one tier. MaxBytes of 0 means
// unbounded.
type Limits struct {
	MaxBytes      int64
	RetentionDays int
	ExportFormats []string
}

// TierLimits is the tier table.
var TierLimits = map[Tier]Limits{
	TierFree: {
		MaxBytes:      100 << 20, // 100 MiB
		RetentionDays: 7,
		ExportFormats: []string{"json", "csv"},
	},
	TierPremium: {
		MaxBytes:      1 << 30, // 1 GiB
		RetentionDays: 30,
		ExportFormats: []string{"json", "jsonl", "csv", "parquet"},
	},
	TierEnterprise: {
		MaxBytes:      0, // unbounded
		RetentionDays: 90,
		ExportFormats: []string{"json", "jsonl", "csv", "parquet", "pinecone", "weaviate"},
	},
}

// LimitsFor returns the ceilings for a tier, falling back to free for
// unknown values.
func LimitsFor(tier Tier) Limits {
	if limits, ok := TierLimits[tier]; ok {
		return limits
	}
	return TierLimits[TierFree]
}

// AllowsFormat reports whether the tier may export in the given format.
func (t Tier) AllowsFormat(format string) bool {
	for _, f := range LimitsFor(t).ExportFormats {
		if f == format {
			return true
		}
	}
	return false
}

// TierResolver resolves a user's subscription tier. The dashboard's billing
// tables are external to the engine, so the resolver is injected.
type TierResolver interface {
	TierFor(ctx context.Context, userID uuid.UUID) (Tier, error)
}

// StaticTiers is a TierResolver backed by a fixed map, defaulting to free.
// It serves tests and single-tenant deployments.
type StaticTiers map[uuid.UUID]Tier

// TierFor returns the user's tier, or free if unassigned.
func (s StaticTiers) TierFor(_ context.Context, userID uuid.UUID) (Tier, error) {
	if tier, ok := s[userID]; ok {
		return tier, nil
	}
	return TierFree, nil
}
