package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringStore keeps tokens in the operating system keyring.
type KeyringStore struct {
	kr keyring.Keyring
}

// OpenKeyring opens the system keyring under the given service name.
func OpenKeyring(service string) (*KeyringStore, error) {
	kr, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &KeyringStore{kr: kr}, nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(kr keyring.Keyring) *KeyringStore {
	return &KeyringStore{kr: kr}
}

func (s *KeyringStore) Get(_ context.Context, key string) (string, bool, error) {
	item, err := s.kr.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keyring get %s: %w", key, err)
	}
	return string(item.Data), true, nil
}

func (s *KeyringStore) Set(_ context.Context, key, value string) error {
	err := s.kr.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "fleet-telemetry " + key,
	})
	if err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}
