// Package network records which identities each issuer can see. An issuer
// sees every DID its accepted claims mention; the read side uses the
// relation to decide what to reveal.
package network

import (
	"context"
	"slices"
	"sync"
)

// Memory keeps the relation in process memory.
type Memory struct {
	mu   sync.RWMutex
	sees map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{sees: make(map[string]map[string]struct{})}
}

// RecordSees adds viewer->subject relations and returns the subjects that
// were new, in input order.
func (m *Memory) RecordSees(_ context.Context, viewer string, subjects []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sees[viewer]
	if !ok {
		set = make(map[string]struct{})
		m.sees[viewer] = set
	}
	added := []string{}
	for _, s := range subjects {
		if _, seen := set[s]; seen || s == "" {
			continue
		}
		set[s] = struct{}{}
		added = append(added, s)
	}
	return added, nil
}

// CanSee returns the subjects viewer sees, sorted.
func (m *Memory) CanSee(_ context.Context, viewer string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sees[viewer]))
	for s := range m.sees[viewer] {
		out = append(out, s)
	}
	slices.Sort(out)
	return out, nil
}
