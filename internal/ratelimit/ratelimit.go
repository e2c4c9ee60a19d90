// Package ratelimit provides per-user, per-kind quota checks over the job
// registry using a sliding window.
//
// The check is a pure read: it counts jobs of a kind created inside the
// window and compares against the configured limit. Nothing is consumed, so
// probing the limit never changes the outcome of a later check.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
)

// Info describes the outcome of a rate limit check.
type Info struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter checks per-user job creation quotas against a sliding window.
type Limiter struct {
	store  jobs.Store
	config *Config
	now    func() time.Time
}

// NewLimiter creates a limiter that counts jobs in the given store.
func NewLimiter(store jobs.Store, config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Limiter{
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// Check reports whether the user may create another job of the given kind.
// Kinds without a configured limit are always allowed. The reset time is the
// moment the oldest in-window job ages out.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID, kind jobs.Kind) (Info, error) {
	now := l.now().UTC()

	limit, ok := l.config.Limits[kind]
	if !ok || !l.config.Enabled {
		return Info{Allowed: true, ResetAt: now}, nil
	}

	since := now.Add(-limit.Window)
	used, err := l.store.CountJobsSince(ctx, userID, kind, since)
	if err != nil {
		return Info{}, fmt.Errorf("failed to count jobs: %w", err)
	}

	resetAt := now.Add(limit.Window)
	if oldest, err := l.store.OldestJobSince(ctx, userID, kind, since); err != nil {
		return Info{}, fmt.Errorf("failed to find oldest job: %w", err)
	} else if oldest != nil {
		resetAt = oldest.CreatedAt.Add(limit.Window)
	}

	remaining := limit.Limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Info{
		Allowed:   used < limit.Limit,
		Limit:     limit.Limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// ErrRateLimitExceeded indicates the user has exhausted the window's quota.
type ErrRateLimitExceeded struct {
	Kind jobs.Kind
	Info Info
}

func (e *ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d/%d used, resets at %s",
		e.Kind, e.Info.Used, e.Info.Limit, e.Info.ResetAt.Format(time.RFC3339))
}

// Enforce runs Check and converts a denied result into ErrRateLimitExceeded.
func (l *Limiter) Enforce(ctx context.Context, userID uuid.UUID, kind jobs.Kind) (Info, error) {
	info, err := l.Check(ctx, userID, kind)
	if err != nil {
		return Info{}, err
	}
	if !info.Allowed {
		return info, &ErrRateLimitExceeded{Kind: kind, Info: info}
	}
	return info, nil
}
