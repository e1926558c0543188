package network

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for a viewer's set of visible subjects
const seesKeyPrefix = "sees:"

// Redis keeps one set per viewer so every instance shares the relation.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// RecordSees adds the subjects to the viewer's set in one MULTI/EXEC and
// returns those SADD reported as new.
func (r *Redis) RecordSees(ctx context.Context, viewer string, subjects []string) ([]string, error) {
	key := seesKeyPrefix + viewer
	cmds := make([]*redis.IntCmd, 0, len(subjects))
	candidates := make([]string, 0, len(subjects))
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, s := range subjects {
			if s == "" {
				continue
			}
			cmds = append(cmds, pipe.SAdd(ctx, key, s))
			candidates = append(candidates, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record sees for %s: %w", viewer, err)
	}
	added := []string{}
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			added = append(added, candidates[i])
		}
	}
	return added, nil
}

// CanSee returns the subjects viewer sees, sorted.
func (r *Redis) CanSee(ctx context.Context, viewer string) ([]string, error) {
	members, err := r.client.SMembers(ctx, seesKeyPrefix+viewer).Result()
	if err != nil {
		return nil, fmt.Errorf("load sees for %s: %w", viewer, err)
	}
	slices.Sort(members)
	return members, nil
}
