// Package auth defines AuthStore, the credential lookup ToolRuntime
// consults before dispatching a call to a provider that declares an
// auth_session_key.
package auth

import (
	"context"
	"sync"

	"github.com/distrihq/distri/distrierr"
)

// Credential is the token (or other secret) injected into a tool call's
// input under the provider's declared auth_session_key.
type Credential struct {
	Token string
	Extra map[string]string
}

// Store resolves a credential for a (userID, provider) pair. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, userID, provider string) (Credential, error)
	Set(ctx context.Context, userID, provider string, cred Credential) error
}

// MemoryStore is an in-memory Store keyed by (userID, provider). Intended
// for tests and single-process deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credential)}
}

func key(userID, provider string) string { return userID + "\x00" + provider }

func (s *MemoryStore) Get(ctx context.Context, userID, provider string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[key(userID, provider)]
	if !ok {
		return Credential{}, &distrierr.NotFound{What: "credential", ID: provider}
	}
	return c, nil
}

func (s *MemoryStore) Set(ctx context.Context, userID, provider string, cred Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[key(userID, provider)] = cred
	return nil
}
