package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/kvstore/kvtest"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDefault(t *testing.T) {
	p := Default(identity.Identity{ID: "u1", Email: "ada@example.com"}, fixedNow)

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "ada", p.Name)
	assert.Equal(t, rbac.RoleUser, p.Role)
	assert.Equal(t, AccountFree, p.AccountType)
	assert.True(t, p.IsActive)
	assert.Equal(t, fixedNow, p.CreatedAt)
	assert.Equal(t, DefaultPreferences(), p.Preferences)
}

func TestDefaultNameFromMetadata(t *testing.T) {
	ident := identity.Identity{
		ID:       "u1",
		Email:    "ada@example.com",
		Metadata: map[string]interface{}{"name": "Ada", "full_name": "Ada Lovelace"},
	}
	assert.Equal(t, "Ada Lovelace", Default(ident, fixedNow).Name)

	ident.Metadata = map[string]interface{}{"name": "Ada"}
	assert.Equal(t, "Ada", Default(ident, fixedNow).Name)
}

func TestDecodeAppliesReadTimeDefaults(t *testing.T) {
	p, err := Decode([]byte(`{"id":"u1","email":"a@example.com"}`))
	require.NoError(t, err)

	assert.Equal(t, rbac.RoleUser, p.Role)
	assert.Equal(t, AccountFree, p.AccountType)
	assert.True(t, p.IsActive)
	assert.Equal(t, "en", p.Preferences.Language)
	assert.True(t, p.Preferences.EmailNotifications)
}

func TestDecodeKeepsExplicitValues(t *testing.T) {
	p, err := Decode([]byte(`{"id":"u1","role":"admin","accountType":"pro","isActive":false,
		"preferences":{"language":"fr","emailNotifications":false}}`))
	require.NoError(t, err)

	assert.Equal(t, rbac.RoleAdmin, p.Role)
	assert.Equal(t, AccountPro, p.AccountType)
	assert.False(t, p.IsActive)
	assert.Equal(t, "fr", p.Preferences.Language)
	assert.Equal(t, "UTC", p.Preferences.Timezone)
	assert.False(t, p.Preferences.EmailNotifications)
}

func TestDecodeUnrecognizedValues(t *testing.T) {
	p, err := Decode([]byte(`{"id":"u1","role":"root","accountType":"platinum"}`))
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleUser, p.Role)
	assert.Equal(t, AccountFree, p.AccountType)
}

func TestParseAccountType(t *testing.T) {
	for _, a := range AccountTypes {
		got, err := ParseAccountType(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAccountType("gold")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestResolveDoesNotPersistDefault(t *testing.T) {
	kv := kvtest.NewFaulty()
	r := NewResolver(kv).WithClock(func() time.Time { return fixedNow })

	p, stored, err := r.Resolve(context.Background(), identity.Identity{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, "u1", p.ID)
	assert.Empty(t, kv.Sets)
}

func TestResolveDefaultIsStable(t *testing.T) {
	ctx := context.Background()
	clock := fixedNow
	r := NewResolver(kvstore.NewMemory()).WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	ident := identity.Identity{ID: "u1", Email: "a@example.com"}

	first, _, err := r.Resolve(ctx, ident)
	require.NoError(t, err)
	second, _, err := r.Resolve(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, first.CreatedAt.IsZero())

	created, err := r.Create(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Second), created.CreatedAt)

	got, stored, err := r.Resolve(ctx, ident)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, created, got)

	kept, err := r.Create(ctx, Default(identity.Identity{ID: "u2"}, fixedNow))
	require.NoError(t, err)
	assert.Equal(t, fixedNow, kept.CreatedAt)
}

func TestResolveReturnsStored(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(kvstore.NewMemory())

	saved := Default(identity.Identity{ID: "u1", Email: "a@example.com"}, fixedNow)
	saved.AccountType = AccountEnterprise
	require.NoError(t, r.Save(ctx, saved))

	got, stored, err := r.Resolve(ctx, identity.Identity{ID: "u1"})
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, saved, got)

	again, _, err := r.Resolve(ctx, identity.Identity{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewResolver(kvstore.NewMemory()).Load(ctx, "nobody")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = NewResolver(kvtest.NewFaulty().FailGets(KeyPrefix)).Load(ctx, "u1")
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))

	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, Key("u1"), []byte("{")))
	_, err = NewResolver(kv).Load(ctx, "u1")
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	r := NewResolver(kv)

	for i, id := range []string{"old", "mid", "new"} {
		p := Default(identity.Identity{ID: id}, fixedNow.Add(time.Duration(i)*time.Hour))
		require.NoError(t, r.Save(ctx, p))
	}
	require.NoError(t, kv.Set(ctx, Key("broken"), []byte("nope")))
	require.NoError(t, kv.Set(ctx, "user_role_old", []byte(`"admin"`)))

	profiles, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "new", profiles[0].ID)
	assert.Equal(t, "old", profiles[2].ID)

	require.NoError(t, r.Delete(ctx, "mid"))
	profiles, err = r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}
