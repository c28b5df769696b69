package permission

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

// --- Fake RoleStore ---

type fakeRoleStore struct {
	roleEntries          []RoleEntry
	roleErr              error
	everyone             *RoleEntry
	everyoneErr          error
	highestManageRole    *RoleEntry
	highestManageRoleErr error
	rolePosition         int
	rolePositionErr      error
	seedCalled           bool
	setPermsCalled       bool
}

func (s *fakeRoleStore) MemberRoles(_ context.Context, _, _ int64) ([]RoleEntry, error) {
	return s.roleEntries, s.roleErr
}

func (s *fakeRoleStore) EveryoneRole(_ context.Context, _ int64) (*RoleEntry, error) {
	return s.everyone, s.everyoneErr
}

func (s *fakeRoleStore) HighestManagePermissionsRole(_ context.Context, _, _ int64) (*RoleEntry, error) {
	return s.highestManageRole, s.highestManageRoleErr
}

func (s *fakeRoleStore) RolePosition(_ context.Context, _, _ int64) (int, error) {
	return s.rolePosition, s.rolePositionErr
}

func (s *fakeRoleStore) SeedDefaultEveryone(_ context.Context, _, _ int64) error {
	s.seedCalled = true
	return nil
}

func (s *fakeRoleStore) SetRolePermissions(_ context.Context, _, _ int64, _ Flags) error {
	s.setPermsCalled = true
	return nil
}

// --- Fake OverrideStore ---

type fakeOverrideStore struct {
	overrides    []Override
	overridesErr error
}

func (s *fakeOverrideStore) Overrides(_ context.Context, _ int64, _ []int64) ([]Override, error) {
	return s.overrides, s.overridesErr
}

func (s *fakeOverrideStore) AllOverrides(_ context.Context, _ int64) ([]Override, error) {
	return s.overrides, s.overridesErr
}

func (s *fakeOverrideStore) SetOverride(_ context.Context, _, _ int64, _, _ Flags) error { return nil }
func (s *fakeOverrideStore) DeleteOverride(_ context.Context, _, _ int64) error          { return nil }

// --- Fake PrivilegeChecker ---

type fakePrivilegeChecker struct {
	privileged bool
	err        error
}

func (p *fakePrivilegeChecker) IsPrivileged(_ context.Context, _, _ int64) (bool, error) {
	return p.privileged, p.err
}

// --- Fake Cache ---

type fakeCache struct {
	data      map[cacheEntryKey]Flags
	getErr    error
	setErr    error
	setCalled bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[cacheEntryKey]Flags)}
}

func (c *fakeCache) Get(_ context.Context, guildID, userID, pageID int64) (Flags, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	perm, ok := c.data[cacheEntryKey{GuildID: guildID, UserID: userID, PageID: pageID}]
	return perm, ok, nil
}

func (c *fakeCache) Set(_ context.Context, guildID, userID, pageID int64, perm Flags) error {
	c.setCalled = true
	if c.setErr != nil {
		return c.setErr
	}
	c.data[cacheEntryKey{GuildID: guildID, UserID: userID, PageID: pageID}] = perm
	return nil
}

func (c *fakeCache) DeleteByUser(_ context.Context, _, _ int64) error   { return nil }
func (c *fakeCache) DeleteByGuild(_ context.Context, _ int64) error     { return nil }
func (c *fakeCache) DeleteExact(_ context.Context, _, _, _ int64) error { return nil }

func newTestResolver(roles *fakeRoleStore, overrides *fakeOverrideStore, priv *fakePrivilegeChecker, cache *fakeCache) *Resolver {
	return NewResolver(roles, overrides, priv, cache, zerolog.Nop())
}

// --- Tests ---

func TestPrivilegedGetsAllPermissions(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{}
	overrides := &fakeOverrideStore{}
	priv := &fakePrivilegeChecker{privileged: true}
	r := newTestResolver(roles, overrides, priv, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if perm != allFlags() {
		t.Errorf("privileged permissions = %s, want all flags", perm)
	}
}

func TestRoleUnionOR(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{
		everyone: &RoleEntry{RoleID: 1},
		roleEntries: []RoleEntry{
			{RoleID: 10, Permissions: FlagView | FlagEdit},
			{RoleID: 20, Permissions: FlagCreate | FlagDelete},
		},
	}
	overrides := &fakeOverrideStore{}
	priv := &fakePrivilegeChecker{}
	r := newTestResolver(roles, overrides, priv, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	expected := FlagView | FlagEdit | FlagCreate | FlagDelete
	if perm != expected {
		t.Errorf("role union = %s, want %s", perm, expected)
	}
}

func TestPageOverrideDenyBeatsRoleAllow(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{
		everyone:    &RoleEntry{RoleID: 1},
		roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView | FlagEdit}},
	}
	overrides := &fakeOverrideStore{
		overrides: []Override{{EntityID: 10, Deny: FlagEdit}},
	}
	priv := &fakePrivilegeChecker{}
	r := newTestResolver(roles, overrides, priv, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	if perm.Has(FlagEdit) {
		t.Error("FlagEdit should be denied by page override")
	}
	if !perm.Has(FlagView) {
		t.Error("FlagView should still be allowed")
	}
}

func TestOverrideDenyWinsOverAnotherEntityAllow(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{
		everyone:    &RoleEntry{RoleID: 1},
		roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView}},
	}
	overrides := &fakeOverrideStore{
		overrides: []Override{
			{EntityID: 10, Deny: FlagEdit},
			{EntityID: 2, Allow: FlagEdit},
		},
	}
	priv := &fakePrivilegeChecker{}
	r := newTestResolver(roles, overrides, priv, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	if perm.Has(FlagEdit) {
		t.Error("a deny override on any entity removes the bit even when another entity's override allows it")
	}
}

func TestDenyAppliedAfterAllowAcrossOverrides(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{}
	overrides := &fakeOverrideStore{
		overrides: []Override{
			{EntityID: 10, Allow: FlagEdit},
			{EntityID: 2, Deny: FlagEdit},
		},
	}
	priv := &fakePrivilegeChecker{}
	r := newTestResolver(roles, overrides, priv, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	if perm.Has(FlagEdit) {
		t.Error("FlagEdit should be denied: deny bits are removed after every allow bit is applied")
	}
}

func TestNoEveryoneRoleFallsBackToDefaultPreset(t *testing.T) {
	t.Parallel()
	r := newTestResolver(&fakeRoleStore{}, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if perm != FlagDefault {
		t.Errorf("perm = %s, want FlagDefault (a guild whose @everyone role was never seeded should default it)", perm)
	}
}

func TestSeededEveryoneRoleWithNoPermissionsGivesZero(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1, IsEveryone: true}}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if perm != FlagNone {
		t.Errorf("perm = %s, want none once @everyone has been explicitly seeded with no permissions", perm)
	}
}

func TestMemberPermissionsFallsBackToDefaultPresetWhenEveryoneUnseeded(t *testing.T) {
	t.Parallel()
	r := newTestResolver(&fakeRoleStore{}, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	perm, err := r.MemberPermissions(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("MemberPermissions() error = %v", err)
	}
	if perm != FlagDefault {
		t.Errorf("perm = %s, want FlagDefault", perm)
	}
}

func TestCacheHitReturnsCachedValue(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{}
	cache := newFakeCache()
	cache.data[cacheEntryKey{GuildID: 1, UserID: 2, PageID: 3}] = FlagView | FlagEdit
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, cache)

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}

	expected := FlagView | FlagEdit
	if perm != expected {
		t.Errorf("cached perm = %s, want %s", perm, expected)
	}
	if roles.roleEntries != nil {
		t.Error("fixture misuse: role entries should remain untouched")
	}
}

func TestCacheMissComputesAndCaches(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1}, roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView}}}
	cache := newFakeCache()
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, cache)

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if perm != FlagView {
		t.Errorf("perm = %s, want FlagView", perm)
	}
	if !cache.setCalled {
		t.Error("Cache.Set should be called on cache miss")
	}
}

func TestCacheGetErrorDegradesToCompute(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1}, roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView}}}
	cache := newFakeCache()
	cache.getErr = fmt.Errorf("cache unavailable")
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, cache)

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() should not fail on cache error, got: %v", err)
	}
	if perm != FlagView {
		t.Errorf("perm = %s, want FlagView", perm)
	}
}

func TestPrivilegeCheckErrorPropagated(t *testing.T) {
	t.Parallel()
	priv := &fakePrivilegeChecker{err: fmt.Errorf("db connection lost")}
	r := newTestResolver(&fakeRoleStore{}, &fakeOverrideStore{}, priv, newFakeCache())

	_, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err == nil {
		t.Fatal("EffectivePermissions() should propagate privilege-check error")
	}
}

func TestRoleStoreErrorPropagated(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{roleErr: fmt.Errorf("db error")}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	_, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err == nil {
		t.Fatal("EffectivePermissions() should propagate role store error")
	}
}

func TestOverrideStoreErrorPropagated(t *testing.T) {
	t.Parallel()
	overrides := &fakeOverrideStore{overridesErr: fmt.Errorf("overrides query failed")}
	r := newTestResolver(&fakeRoleStore{}, overrides, &fakePrivilegeChecker{}, newFakeCache())

	_, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err == nil {
		t.Fatal("EffectivePermissions() should propagate override store error")
	}
}

func TestCacheSetErrorDoesNotFailResolve(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1}, roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView}}}
	cache := newFakeCache()
	cache.setErr = fmt.Errorf("cache write failed")
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, cache)

	perm, err := r.EffectivePermissions(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("EffectivePermissions() should not fail on cache set error, got: %v", err)
	}
	if perm != FlagView {
		t.Errorf("perm = %s, want FlagView", perm)
	}
}

func TestAuthorizeMissingPermission(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1}, roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView}}}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	err := r.Authorize(context.Background(), 1, 2, 3, FlagEdit)
	var missing ErrMissingPagePermissions
	if err == nil {
		t.Fatal("Authorize() should fail when required permission is missing")
	}
	if !errors.As(err, &missing) {
		t.Fatalf("Authorize() error = %v, want ErrMissingPagePermissions", err)
	}
	if missing.Required != FlagEdit {
		t.Errorf("missing.Required = %s, want FlagEdit", missing.Required)
	}
}

func TestAuthorizeSucceeds(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1}, roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView | FlagEdit}}}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	if err := r.Authorize(context.Background(), 1, 2, 3, FlagView); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
}

func TestAuthorizeGuildMissingPermission(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 1}, roleEntries: []RoleEntry{{RoleID: 10, Permissions: FlagView}}}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	err := r.AuthorizeGuild(context.Background(), 1, 2, FlagManageBindings)
	var missing ErrMissingPermissions
	if !errors.As(err, &missing) {
		t.Fatalf("AuthorizeGuild() error = %v, want ErrMissingPermissions", err)
	}
}

func TestCheckRoleEditPrivilegedBypasses(t *testing.T) {
	t.Parallel()
	priv := &fakePrivilegeChecker{privileged: true}
	r := newTestResolver(&fakeRoleStore{}, &fakeOverrideStore{}, priv, newFakeCache())

	if err := r.CheckRoleEdit(context.Background(), 1, 2, 99); err != nil {
		t.Fatalf("CheckRoleEdit() error = %v, want nil for privileged actor", err)
	}
}

func TestCheckRoleEditRequiresManagePermissions(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{highestManageRole: nil}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	if err := r.CheckRoleEdit(context.Background(), 1, 2, 99); err == nil {
		t.Fatal("CheckRoleEdit() should fail when actor holds no manage_permissions role")
	}
}

func TestCheckRoleEditRequiresStrictlyHigherRole(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{
		highestManageRole: &RoleEntry{RoleID: 5, Position: 2},
		rolePosition:      1, // target ranks above actor's role (lower position number)
	}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	if err := r.CheckRoleEdit(context.Background(), 1, 2, 99); err == nil {
		t.Fatal("CheckRoleEdit() should fail when target role outranks actor's role")
	}
}

func TestCheckRoleEditAllowsLowerTargetRole(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{
		highestManageRole: &RoleEntry{RoleID: 5, Position: 1},
		rolePosition:      2, // target ranks below actor's role
	}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	if err := r.CheckRoleEdit(context.Background(), 1, 2, 99); err != nil {
		t.Fatalf("CheckRoleEdit() error = %v, want nil when target role ranks below actor's", err)
	}
}

func TestEnsureDefaultRoleSeedsWhenAbsent(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: nil}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	if err := r.EnsureDefaultRole(context.Background(), 1, 10); err != nil {
		t.Fatalf("EnsureDefaultRole() error = %v", err)
	}
	if !roles.seedCalled {
		t.Error("EnsureDefaultRole() should seed when no @everyone role is configured")
	}
}

func TestEnsureDefaultRoleSkipsWhenPresent(t *testing.T) {
	t.Parallel()
	roles := &fakeRoleStore{everyone: &RoleEntry{RoleID: 10, IsEveryone: true}}
	r := newTestResolver(roles, &fakeOverrideStore{}, &fakePrivilegeChecker{}, newFakeCache())

	if err := r.EnsureDefaultRole(context.Background(), 1, 10); err != nil {
		t.Fatalf("EnsureDefaultRole() error = %v", err)
	}
	if roles.seedCalled {
		t.Error("EnsureDefaultRole() should not seed when an @everyone role already exists")
	}
}
