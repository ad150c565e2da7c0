// Package kvtest provides store doubles for tests in other packages.
package kvtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/platinummonkey/controlplane/pkg/kvstore"
)

// ErrInjected is the default error returned by a failing operation
var ErrInjected = errors.New("kvtest: injected store failure")

// Faulty wraps a store, failing selected operations and counting writes.
// A key prefix limits a failure to matching keys; an empty prefix fails all.
type Faulty struct {
	kvstore.Store

	mu sync.Mutex

	getPrefix, setPrefix, deletePrefix, scanPrefix string

	failGet, failSet, failDelete, failScan bool

	Sets    []string
	Deletes []string
}

// NewFaulty wraps a fresh in-memory store
func NewFaulty() *Faulty {
	return &Faulty{Store: kvstore.NewMemory()}
}

// FailGets makes Get fail for keys with prefix
func (f *Faulty) FailGets(prefix string) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet, f.getPrefix = true, prefix
	return f
}

// FailSets makes Set fail for keys with prefix
func (f *Faulty) FailSets(prefix string) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet, f.setPrefix = true, prefix
	return f
}

// FailDeletes makes Delete fail for keys with prefix
func (f *Faulty) FailDeletes(prefix string) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete, f.deletePrefix = true, prefix
	return f
}

// FailScans makes ScanPrefix fail for prefixes starting with prefix
func (f *Faulty) FailScans(prefix string) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failScan, f.scanPrefix = true, prefix
	return f
}

// Heal clears every injected failure
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet, f.failSet, f.failDelete, f.failScan = false, false, false, false
}

// SetCount returns how many successful writes touched keys with prefix
func (f *Faulty) SetCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, key := range f.Sets {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

// Reset clears recorded writes and deletes
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sets, f.Deletes = nil, nil
}

func (f *Faulty) Get(ctx context.Context, key string) ([]byte, error) {
	if f.fails(&f.failGet, &f.getPrefix, key) {
		return nil, ErrInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *Faulty) Set(ctx context.Context, key string, value []byte) error {
	if f.fails(&f.failSet, &f.setPrefix, key) {
		return ErrInjected
	}
	if err := f.Store.Set(ctx, key, value); err != nil {
		return err
	}

	f.mu.Lock()
	f.Sets = append(f.Sets, key)
	f.mu.Unlock()
	return nil
}

func (f *Faulty) Delete(ctx context.Context, key string) error {
	if f.fails(&f.failDelete, &f.deletePrefix, key) {
		return ErrInjected
	}
	if err := f.Store.Delete(ctx, key); err != nil {
		return err
	}

	f.mu.Lock()
	f.Deletes = append(f.Deletes, key)
	f.mu.Unlock()
	return nil
}

func (f *Faulty) ScanPrefix(ctx context.Context, prefix string) ([]kvstore.Item, error) {
	if f.fails(&f.failScan, &f.scanPrefix, prefix) {
		return nil, ErrInjected
	}
	return f.Store.ScanPrefix(ctx, prefix)
}

func (f *Faulty) fails(enabled *bool, prefix *string, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *enabled && strings.HasPrefix(key, *prefix)
}
