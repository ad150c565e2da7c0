package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
)

// Resolver loads and stores profiles
type Resolver struct {
	kv  kvstore.Store
	now func() time.Time
}

// NewResolver creates a profile resolver over kv
func NewResolver(kv kvstore.Store) *Resolver {
	return &Resolver{kv: kv, now: time.Now}
}

// WithClock overrides the time source used to stamp created profiles
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve returns the stored profile for ident, or an unpersisted default.
// stored reports which one was returned. An unpersisted default has a zero
// CreatedAt; Create stamps it.
func (r *Resolver) Resolve(ctx context.Context, ident identity.Identity) (p Profile, stored bool, err error) {
	p, err = r.Load(ctx, ident.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Default(ident, time.Time{}), false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return p, true, nil
}

// Load returns the stored profile for id, or NotFound
func (r *Resolver) Load(ctx context.Context, id string) (Profile, error) {
	data, err := r.kv.Get(ctx, Key(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return Profile{}, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return Profile{}, apperr.StoreFailure(err, "failed to read profile %s", id)
	}

	p, err := Decode(data)
	if err != nil {
		return Profile{}, apperr.StoreFailure(err, "failed to decode profile %s", id)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// Create persists a newly resolved profile, stamping CreatedAt when unset
func (r *Resolver) Create(ctx context.Context, p Profile) (Profile, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}
	if err := r.Save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Save writes p
func (r *Resolver) Save(ctx context.Context, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return apperr.StoreFailure(err, "failed to encode profile %s", p.ID)
	}
	if err := r.kv.Set(ctx, Key(p.ID), data); err != nil {
		return apperr.StoreFailure(err, "failed to write profile %s", p.ID)
	}
	return nil
}

// Delete removes id's profile
func (r *Resolver) Delete(ctx context.Context, id string) error {
	if err := r.kv.Delete(ctx, Key(id)); err != nil {
		return apperr.StoreFailure(err, "failed to delete profile %s", id)
	}
	return nil
}

// List returns every stored profile, newest first. Records that fail to
// decode are skipped.
func (r *Resolver) List(ctx context.Context) ([]Profile, error) {
	items, err := r.kv.ScanPrefix(ctx, KeyPrefix)
	if err != nil {
		return nil, apperr.StoreFailure(err, "failed to list profiles")
	}

	profiles := make([]Profile, 0, len(items))
	for _, item := range items {
		p, err := Decode(item.Value)
		if err != nil {
			continue
		}
		if p.ID == "" {
			p.ID = item.Key[len(KeyPrefix):]
		}
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.After(profiles[j].CreatedAt)
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}
