package network

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"endorser/internal/claims/ports"
)

// Cached serves CanSee from a TTL cache in front of another recorder.
// Entries written through this instance are invalidated immediately; writes
// made by other instances show up once the entry expires.
type Cached struct {
	next  ports.NetworkRecorder
	cache *gocache.Cache
}

func NewCached(next ports.NetworkRecorder, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (c *Cached) RecordSees(ctx context.Context, viewer string, subjects []string) ([]string, error) {
	added, err := c.next.RecordSees(ctx, viewer, subjects)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		c.cache.Delete(viewer)
	}
	return added, nil
}

func (c *Cached) CanSee(ctx context.Context, viewer string) ([]string, error) {
	if v, found := c.cache.Get(viewer); found {
		return slices.Clone(v.([]string)), nil
	}
	subjects, err := c.next.CanSee(ctx, viewer)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(viewer, slices.Clone(subjects))
	return subjects, nil
}
