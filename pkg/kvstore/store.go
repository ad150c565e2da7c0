package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent
var ErrNotFound = errors.New("kvstore: key not found")

// Item is a key with its stored value
type Item struct {
	Key   string
	Value []byte
}

// Store is the key-value contract the control plane is built on. Every write
// is a single-key put; there are no multi-key transactions.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ScanPrefix returns every item whose key starts with prefix, in no
	// particular order
	ScanPrefix(ctx context.Context, prefix string) ([]Item, error)

	// Ping checks connectivity to the backend
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// GetJSON decodes the value under key into dest
func GetJSON(ctx context.Context, s Store, key string, dest interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it under key
func SetJSON(ctx context.Context, s Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// filterPrefix drops items a backend returned that do not start with prefix
// byte-for-byte (case-insensitive LIKE, glob escapes)
func filterPrefix(items []Item, prefix string) []Item {
	out := items[:0]
	for _, item := range items {
		if strings.HasPrefix(item.Key, prefix) {
			out = append(out, item)
		}
	}
	return out
}
