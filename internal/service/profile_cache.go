package service

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/repository"
)

// ProfileCache resolves message authors to display profiles. Entries expire
// after the configured TTL so renamed accounts show up eventually.
type ProfileCache struct {
	users repository.UserRepository
	cache *ttlcache.Cache[int64, domain.Profile]
}

// NewProfileCache builds a cache backed by users.
func NewProfileCache(users repository.UserRepository, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		users: users,
		cache: ttlcache.New(
			ttlcache.WithTTL[int64, domain.Profile](ttl),
			ttlcache.WithDisableTouchOnHit[int64, domain.Profile](),
		),
	}
}

// Start runs expired-entry cleanup until Stop is called.
func (p *ProfileCache) Start() {
	go p.cache.Start()
}

// Stop ends the cleanup loop.
func (p *ProfileCache) Stop() {
	p.cache.Stop()
}

// Resolve returns profiles for the given user ids. Unknown users are absent from the result.
func (p *ProfileCache) Resolve(ctx context.Context, ids []int64) (map[int64]domain.Profile, error) {
	result := make(map[int64]domain.Profile, len(ids))
	var missing []int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if item := p.cache.Get(id); item != nil {
			result[id] = item.Value()
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	users, err := p.users.ListByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range users {
		profile := users[i].Profile()
		p.cache.Set(profile.ID, profile, ttlcache.DefaultTTL)
		result[profile.ID] = profile
	}
	return result, nil
}
