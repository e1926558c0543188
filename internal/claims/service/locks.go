package service

import (
	"context"
	"slices"
	"sync"

	dErrors "endorser/pkg/domain-errors"
)

// numTargetShards is the number of confirmation target locks. Keys hash onto
// shards so unrelated targets rarely contend.
const numTargetShards = 256

// targetLocks serializes confirmations of the same target from Prepare
// through Apply.
type targetLocks struct {
	shards [numTargetShards]sync.Mutex
}

// Lock takes the shards of keys in ascending order, so two claims that share
// targets never wait on each other in opposite orders.
func (l *targetLocks) Lock(ctx context.Context, keys []string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "confirmation aborted: context cancelled")
	}
	shards := make([]int, 0, len(keys))
	for _, k := range keys {
		shards = append(shards, int(hashTarget(k)%numTargetShards))
	}
	slices.Sort(shards)
	shards = slices.Compact(shards)

	for _, s := range shards {
		l.shards[s].Lock()
	}
	unlock := func() {
		for i := len(shards) - 1; i >= 0; i-- {
			l.shards[shards[i]].Unlock()
		}
	}

	if err := ctx.Err(); err != nil {
		unlock()
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "confirmation aborted: context cancelled")
	}
	return unlock, nil
}

// hashTarget is FNV-1a.
func hashTarget(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
