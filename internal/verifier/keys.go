package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// StaticKeys resolves keys from a fixed table. Shared, when set, verifies
// HS256 tokens from any issuer; it exists for development setups where
// issuers have no published keys.
type StaticKeys struct {
	mu     sync.RWMutex
	keys   map[string]any
	shared []byte
}

func NewStaticKeys(shared []byte) *StaticKeys {
	return &StaticKeys{keys: make(map[string]any), shared: shared}
}

// Add registers an issuer's public key.
func (s *StaticKeys) Add(issuer string, key any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[issuer] = key
}

func (s *StaticKeys) ResolveKey(_ context.Context, issuer, alg string) (any, error) {
	s.mu.RLock()
	key, ok := s.keys[issuer]
	s.mu.RUnlock()
	if !ok {
		if alg == jwt.SigningMethodHS256.Alg() && len(s.shared) > 0 {
			return s.shared, nil
		}
		return nil, fmt.Errorf("no key for issuer %s", issuer)
	}
	switch key.(type) {
	case ed25519.PublicKey:
		if alg != jwt.SigningMethodEdDSA.Alg() {
			return nil, fmt.Errorf("issuer %s signs with EdDSA, token uses %s", issuer, alg)
		}
	case *ecdsa.PublicKey:
		if alg != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("issuer %s signs with ES256, token uses %s", issuer, alg)
		}
	case []byte:
		if alg != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("issuer %s signs with HS256, token uses %s", issuer, alg)
		}
	}
	return key, nil
}
