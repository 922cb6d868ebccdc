package tenant

import (
	"context"
	"sync"
)

// Memory is an in-process credential store.
type Memory struct {
	creds map[string]Credential
	mu    sync.RWMutex
}

// NewMemory creates a store seeded with creds.
func NewMemory(creds ...Credential) *Memory {
	m := &Memory{creds: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		c.ShopURL = NormalizeShop(c.ShopURL)
		m.creds[c.ShopURL] = c
	}
	return m
}

// Resolve returns the credential of shop.
func (m *Memory) Resolve(ctx context.Context, shop string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.creds[NormalizeShop(shop)]; ok && c.APIKey != "" {
		return c, nil
	}
	return Credential{}, notConfigured(shop)
}

// Save adds or replaces the credential of cred.ShopURL.
func (m *Memory) Save(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.ShopURL = NormalizeShop(cred.ShopURL)
	m.creds[cred.ShopURL] = cred
	return nil
}

// Count returns the number of stored credentials.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds)
}
