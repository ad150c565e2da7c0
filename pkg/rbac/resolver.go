package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
)

// RoleKeyPrefix prefixes every role record key
const RoleKeyPrefix = "user_role_"

// RoleKey returns the store key of id's role record
func RoleKey(id string) string {
	return RoleKeyPrefix + id
}

// Resolver reads and writes role records
type Resolver struct {
	kv kvstore.Store
}

// NewResolver creates a role resolver over kv
func NewResolver(kv kvstore.Store) *Resolver {
	return &Resolver{kv: kv}
}

// ResolveRole returns id's effective role. An administrative role record is
// authoritative; a "user" record yields user; an absent or unrecognized
// record yields fallback, itself defaulting to user.
func (r *Resolver) ResolveRole(ctx context.Context, id string, fallback Role) (Role, error) {
	record, ok, err := r.Lookup(ctx, id)
	if err != nil {
		return "", err
	}

	switch {
	case ok && record.IsAdministrative():
		return record, nil
	case ok && record == RoleUser:
		return RoleUser, nil
	default:
		return fallback.OrDefault(), nil
	}
}

// Lookup returns the raw role record. ok is false when the record is absent
// or does not decode to a recognized role.
func (r *Resolver) Lookup(ctx context.Context, id string) (Role, bool, error) {
	data, err := r.kv.Get(ctx, RoleKey(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.StoreFailure(err, "failed to read role record for %s", id)
	}

	role := decodeRole(data)
	return role, role.Valid(), nil
}

// Assign writes id's role record
func (r *Resolver) Assign(ctx context.Context, id string, role Role) error {
	if !role.Valid() {
		return apperr.Validation("unrecognized role %q", role)
	}

	data, err := json.Marshal(string(role))
	if err != nil {
		return apperr.StoreFailure(err, "failed to encode role record")
	}
	if err := r.kv.Set(ctx, RoleKey(id), data); err != nil {
		return apperr.StoreFailure(err, "failed to write role record for %s", id)
	}
	return nil
}

// Delete removes id's role record
func (r *Resolver) Delete(ctx context.Context, id string) error {
	if err := r.kv.Delete(ctx, RoleKey(id)); err != nil {
		return apperr.StoreFailure(err, "failed to delete role record for %s", id)
	}
	return nil
}

// decodeRole accepts a JSON string or a bare value
func decodeRole(data []byte) Role {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return Role(s)
	}
	return Role(strings.TrimSpace(string(data)))
}
