package permission

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Resolver computes effective permissions for a guild member, optionally scoped to a single page.
type Resolver struct {
	roles     RoleStore
	overrides OverrideStore
	privilege PrivilegeChecker
	cache     Cache
	pages     PageLookup
	log       zerolog.Logger
}

// NewResolver creates a new permission resolver.
func NewResolver(roles RoleStore, overrides OverrideStore, privilege PrivilegeChecker, cache Cache, logger zerolog.Logger) *Resolver {
	return &Resolver{roles: roles, overrides: overrides, privilege: privilege, cache: cache, log: logger}
}

// SetPageLookup wires a title-to-page-ID resolver into r, enabling AuthorizeByTitle. cmd/pagekeeper calls this once
// during startup wiring, after both the resolver and internal/wiki's repository are built; taking the lookup through
// this setter keeps internal/permission from importing internal/wiki.
func (r *Resolver) SetPageLookup(pages PageLookup) {
	r.pages = pages
}

// AuthorizeByTitle resolves title to a page ID via the wired PageLookup and then authorizes against it. Returns
// ErrPageNotFound if title does not resolve to a page or alias in the guild.
func (r *Resolver) AuthorizeByTitle(ctx context.Context, guildID, userID int64, title string, required Flags) error {
	pageID, found, err := r.pages.PageIDForTitle(ctx, guildID, title)
	if err != nil {
		return fmt.Errorf("resolve page title: %w", err)
	}
	if !found {
		return ErrPageNotFound{Title: title}
	}
	return r.Authorize(ctx, guildID, userID, pageID, required)
}

// MemberPermissions returns a member's guild-scoped (page-independent) permissions: the union of every role they
// hold, or every bit set if they are privileged.
func (r *Resolver) MemberPermissions(ctx context.Context, guildID, userID int64) (Flags, error) {
	if perm, ok, err := r.cacheGet(ctx, guildID, userID, 0); err != nil {
		r.log.Warn().Err(err).Msg("permission cache get failed, falling through to compute")
	} else if ok {
		return perm, nil
	}

	perm, err := r.computeMemberPermissions(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}

	if err := r.cache.Set(ctx, guildID, userID, 0, perm); err != nil {
		r.log.Warn().Err(err).Msg("permission cache set failed")
	}
	return perm, nil
}

func (r *Resolver) computeMemberPermissions(ctx context.Context, guildID, userID int64) (Flags, error) {
	privileged, err := r.privilege.IsPrivileged(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("check privilege: %w", err)
	}
	if privileged {
		return allFlags(), nil
	}

	roleEntries, err := r.roles.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("get member roles: %w", err)
	}

	base, err := r.defaultRolePermissions(ctx, guildID)
	if err != nil {
		return 0, err
	}
	for _, entry := range roleEntries {
		base = base.Add(entry.Permissions)
	}
	return base, nil
}

// EffectivePermissions returns a member's permissions on a specific page: the guild-scoped union of their roles,
// widened by any page override that allows a bit and narrowed by any page override that denies it. A privileged
// member always gets every bit, bypassing overrides entirely.
func (r *Resolver) EffectivePermissions(ctx context.Context, guildID, userID, pageID int64) (Flags, error) {
	if perm, ok, err := r.cacheGet(ctx, guildID, userID, pageID); err != nil {
		r.log.Warn().Err(err).Msg("permission cache get failed, falling through to compute")
	} else if ok {
		return perm, nil
	}

	perm, err := r.computeEffectivePermissions(ctx, guildID, userID, pageID)
	if err != nil {
		return 0, err
	}

	if err := r.cache.Set(ctx, guildID, userID, pageID, perm); err != nil {
		r.log.Warn().Err(err).Msg("permission cache set failed")
	}
	return perm, nil
}

func (r *Resolver) computeEffectivePermissions(ctx context.Context, guildID, userID, pageID int64) (Flags, error) {
	privileged, err := r.privilege.IsPrivileged(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("check privilege: %w", err)
	}
	if privileged {
		return allFlags(), nil
	}

	roleEntries, err := r.roles.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("get member roles: %w", err)
	}

	base, err := r.defaultRolePermissions(ctx, guildID)
	if err != nil {
		return 0, err
	}
	entityIDs := make([]int64, 0, len(roleEntries)+1)
	for _, entry := range roleEntries {
		base = base.Add(entry.Permissions)
		entityIDs = append(entityIDs, entry.RoleID)
	}
	entityIDs = append(entityIDs, userID)

	overrides, err := r.overrides.Overrides(ctx, pageID, entityIDs)
	if err != nil {
		return 0, fmt.Errorf("get page overrides: %w", err)
	}

	var allow, deny Flags
	for _, o := range overrides {
		allow = allow.Add(o.Allow)
		deny = deny.Add(o.Deny)
	}

	base = base.Add(allow)
	base = base.Remove(deny)
	return base, nil
}

// Authorize returns an error unless the member has every bit of required on page pageID. It performs no page lookup:
// pageID is used as given and a missing page is not detected here (AuthorizeByTitle resolves a title first and
// reports ErrPageNotFound).
func (r *Resolver) Authorize(ctx context.Context, guildID, userID int64, pageID int64, required Flags) error {
	perm, err := r.EffectivePermissions(ctx, guildID, userID, pageID)
	if err != nil {
		return err
	}
	if !perm.Has(required) {
		return ErrMissingPagePermissions{Required: required}
	}
	return nil
}

// AuthorizeGuild returns an error unless the member has every bit of required at the guild (page-independent) scope.
func (r *Resolver) AuthorizeGuild(ctx context.Context, guildID, userID int64, required Flags) error {
	perm, err := r.MemberPermissions(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if !perm.Has(required) {
		return ErrMissingPermissions{Required: required}
	}
	return nil
}

// CheckRoleEdit returns an error unless actor may edit targetRoleID's permissions: a privileged actor may edit any
// role; otherwise the actor must hold FlagManagePermissions and their highest manage_permissions-bearing role must
// rank strictly above targetRoleID (lower position value).
func (r *Resolver) CheckRoleEdit(ctx context.Context, guildID, actorID, targetRoleID int64) error {
	privileged, err := r.privilege.IsPrivileged(ctx, guildID, actorID)
	if err != nil {
		return fmt.Errorf("check privilege: %w", err)
	}
	if privileged {
		return nil
	}

	actorRole, err := r.roles.HighestManagePermissionsRole(ctx, guildID, actorID)
	if err != nil {
		return fmt.Errorf("get highest manage-permissions role: %w", err)
	}
	if actorRole == nil {
		return ErrMissingPermissions{Required: FlagManagePermissions}
	}

	targetPosition, err := r.roles.RolePosition(ctx, guildID, targetRoleID)
	if err != nil {
		return fmt.Errorf("get target role position: %w", err)
	}

	if actorRole.Position >= targetPosition {
		return ErrMissingPermissions{Required: FlagManagePermissions}
	}
	return nil
}

// EnsureDefaultRole seeds FlagDefault onto the guild's @everyone role if it has not been configured yet. Idempotent.
func (r *Resolver) EnsureDefaultRole(ctx context.Context, guildID, everyoneRoleID int64) error {
	existing, err := r.roles.EveryoneRole(ctx, guildID)
	if err != nil {
		return fmt.Errorf("get everyone role: %w", err)
	}
	if existing != nil {
		return nil
	}
	return r.roles.SeedDefaultEveryone(ctx, guildID, everyoneRoleID)
}

// defaultRolePermissions returns FlagDefault if the guild's @everyone role has never been seeded, since an absent
// row means every member implicitly holds the default preset rather than nothing. A seeded row's own permissions
// already reach computeMemberPermissions/computeEffectivePermissions through MemberRoles, so this returns 0 once
// the row exists to avoid counting it twice.
func (r *Resolver) defaultRolePermissions(ctx context.Context, guildID int64) (Flags, error) {
	everyone, err := r.roles.EveryoneRole(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("get everyone role: %w", err)
	}
	if everyone == nil {
		return FlagDefault, nil
	}
	return 0, nil
}

func (r *Resolver) cacheGet(ctx context.Context, guildID, userID, pageID int64) (Flags, bool, error) {
	if r.cache == nil {
		return 0, false, nil
	}
	return r.cache.Get(ctx, guildID, userID, pageID)
}

func allFlags() Flags {
	var all Flags
	for _, fn := range flagNames {
		all = all.Add(fn.flag)
	}
	return all
}
