package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrSecretNotFound is returned by a Keyring when nothing is stored under the key.
var ErrSecretNotFound = errors.New("secret not found")

// Keyring stores secrets by service and account.
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// SystemKeyring returns the OS keyring.
func SystemKeyring() Keyring { return systemKeyring{} }

type systemKeyring struct{}

func (systemKeyring) Set(service, account, secret string) error {
	if err := keyring.Set(service, account, secret); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", service, account, err)
	}
	return nil
}

func (systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s/%s: %w", service, account, err)
	}
	return secret, nil
}

func (systemKeyring) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrSecretNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring delete %s/%s: %w", service, account, err)
	}
	return nil
}

// MemoryKeyring keeps secrets in process memory. Used by tests and by
// --no-keyring runs on hosts without a secret service.
type MemoryKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> secret
}

func NewMemoryKeyring() *MemoryKeyring {
	return &MemoryKeyring{store: make(map[string]map[string]string)}
}

func (m *MemoryKeyring) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = secret
	return nil
}

func (m *MemoryKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if secret, ok := m.store[service][account]; ok {
		return secret, nil
	}
	return "", ErrSecretNotFound
}

func (m *MemoryKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[service][account]; !ok {
		return ErrSecretNotFound
	}
	delete(m.store[service], account)
	return nil
}
