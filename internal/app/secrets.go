package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"appforge/pkg/store"
)

// StoreCredentialProvider resolves the completion API key from the secrets
// table, memoizing after the first successful fetch. Concurrent first
// lookups are collapsed via singleflight. It implements ai.KeyProvider.
type StoreCredentialProvider struct {
	store    store.Store
	name     string
	fallback string

	group  singleflight.Group
	mu     sync.RWMutex
	cached string
}

// NewStoreCredentialProvider builds a provider for the named secret.
// fallback (usually an env value) is used when the secrets table has no row.
func NewStoreCredentialProvider(s store.Store, name, fallback string) *StoreCredentialProvider {
	return &StoreCredentialProvider{
		store:    s,
		name:     strings.TrimSpace(name),
		fallback: strings.TrimSpace(fallback),
	}
}

// APIKey returns the memoized credential, fetching it on first use.
func (p *StoreCredentialProvider) APIKey(ctx context.Context) (string, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	value, err, _ := p.group.Do(p.name, func() (any, error) {
		secret, found, err := p.store.GetSecret(p.name)
		if err != nil {
			return "", fmt.Errorf("fetch secret %s: %w", p.name, err)
		}
		if !found || strings.TrimSpace(secret) == "" {
			if p.fallback == "" {
				return "", fmt.Errorf("secret %s is not configured", p.name)
			}
			secret = p.fallback
		}
		p.mu.Lock()
		p.cached = secret
		p.mu.Unlock()
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}
