package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DecisionCache memoizes resolutions per principal, invalidated by the
// organization version counter. The counter is the sole correctness
// mechanism; the TTL is a secondary safety net only.
//
// Concurrent recomputation for one principal is tolerated: resolution is pure
// and idempotent, so the last writer simply overwrites an equivalent entry.
// No single-flight lock is taken and no lock is held across store I/O.
type DecisionCache struct {
	client   *redis.Client
	store    Store
	resolver *Resolver
	ttl      time.Duration
	logger   *slog.Logger
	observer CacheObserver
}

// CacheObserver counts cache lookups for metrics. Outcomes are "hit",
// "stale", and "miss".
type CacheObserver interface {
	ObserveCacheLookup(outcome string)
}

type cacheEntry struct {
	Version    int64      `json:"version"`
	Resolution Resolution `json:"resolution"`
}

// NewDecisionCache constructs a DecisionCache. A nil client degrades to
// computing every resolution directly.
func NewDecisionCache(client *redis.Client, store Store, resolver *Resolver, ttl time.Duration, logger *slog.Logger) *DecisionCache {
	return &DecisionCache{client: client, store: store, resolver: resolver, ttl: ttl, logger: logger}
}

// SetObserver attaches a lookup observer. Nil disables observation.
func (c *DecisionCache) SetObserver(observer CacheObserver) {
	c.observer = observer
}

func (c *DecisionCache) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveCacheLookup(outcome)
	}
}

// GetOrCompute returns the memoized resolution for the principal, recomputing
// when the entry is missing or its version is stale.
func (c *DecisionCache) GetOrCompute(ctx context.Context, principalID uuid.UUID) (*Resolution, error) {
	if c.client == nil {
		return c.resolver.Resolve(ctx, principalID)
	}

	key := decisionKey(principalID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var entry cacheEntry
		if err := json.Unmarshal(payload, &entry); err == nil {
			current, verr := c.store.OrganizationVersion(ctx, entry.Resolution.OrganizationID)
			if verr == nil && current == entry.Version {
				c.observe("hit")
				return &entry.Resolution, nil
			}
			if verr != nil {
				return nil, storeErr("read version", verr)
			}
			c.observe("stale")
		}
	} else if !errors.Is(err, redis.Nil) && c.logger != nil {
		c.logger.Warn("decision cache read", slog.Any("error", err))
	} else if errors.Is(err, redis.Nil) {
		c.observe("miss")
	}

	return c.compute(ctx, principalID, key)
}

// compute snapshots the version before resolving, then publishes the full
// result. Taking the version first guarantees that a write racing with this
// resolution leaves the entry stale-by-version, so the next read recomputes;
// the cache never serves permanently stale data.
func (c *DecisionCache) compute(ctx context.Context, principalID uuid.UUID, key string) (*Resolution, error) {
	profile, err := c.store.GetUserProfile(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, err
		}
		return nil, storeErr("load profile", err)
	}
	version, err := c.store.OrganizationVersion(ctx, profile.OrganizationID)
	if err != nil {
		return nil, storeErr("read version", err)
	}

	resolution, err := c.resolver.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}

	entry := cacheEntry{Version: version, Resolution: *resolution}
	data, err := json.Marshal(entry)
	if err != nil {
		return resolution, nil
	}
	// Publishing may outlive a cancelled request; the entry is complete and
	// reusable either way.
	if err := c.client.Set(context.WithoutCancel(ctx), key, data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("decision cache write", slog.Any("error", err))
	}
	return resolution, nil
}

// Forget drops the memoized entry for a principal. Version comparison already
// guarantees correctness; this only reclaims space eagerly, for example when
// a profile is deleted.
func (c *DecisionCache) Forget(ctx context.Context, principalID uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, decisionKey(principalID)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func decisionKey(principalID uuid.UUID) string {
	return fmt.Sprintf("rbac:decision:%s", principalID)
}
