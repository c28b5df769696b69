package permission

import (
	"context"
	"errors"
)

// ErrOverrideNotFound is returned when a page permission override does not exist.
var ErrOverrideNotFound = errors.New("permission override not found")

// RoleEntry pairs a role ID with its guild-level permission bitmask and its position (lower position ranks higher;
// used by the role-editing guard).
type RoleEntry struct {
	RoleID      int64
	Permissions Flags
	Position    int
	IsEveryone  bool
}

// Override is a page permission override row for one entity (a role or a member).
type Override struct {
	EntityID int64
	Allow    Flags
	Deny     Flags
}

// RoleStore provides read access to guild role permissions.
type RoleStore interface {
	// MemberRoles returns the permission bitmask of every role the member holds, including @everyone. If the
	// guild's @everyone role has no row, the resolver applies FlagDefault in its place without writing a row.
	MemberRoles(ctx context.Context, guildID, userID int64) ([]RoleEntry, error)

	// EveryoneRole returns the guild's @everyone role entry, or (nil, nil) if none exists yet.
	EveryoneRole(ctx context.Context, guildID int64) (*RoleEntry, error)

	// HighestManagePermissionsRole returns the highest-ranked (lowest position) role the member holds that carries
	// FlagManagePermissions, or (nil, nil) if the member holds none.
	HighestManagePermissionsRole(ctx context.Context, guildID, userID int64) (*RoleEntry, error)

	// RolePosition returns a role's position within its guild.
	RolePosition(ctx context.Context, guildID, roleID int64) (int, error)

	// SeedDefaultEveryone inserts FlagDefault for the guild's @everyone role if absent. Idempotent.
	SeedDefaultEveryone(ctx context.Context, guildID, everyoneRoleID int64) error

	// SetRolePermissions overwrites a role's permission bitmask.
	SetRolePermissions(ctx context.Context, guildID, roleID int64, perms Flags) error
}

// OverrideStore provides read/write access to page permission overrides.
type OverrideStore interface {
	// Overrides returns the override rows for page pageID whose entity is in entityIDs (the member's user ID plus
	// every role ID they hold).
	Overrides(ctx context.Context, pageID int64, entityIDs []int64) ([]Override, error)

	// AllOverrides returns every override row for a page, for presentation (show-page-permissions).
	AllOverrides(ctx context.Context, pageID int64) ([]Override, error)

	// SetOverride upserts the allow/deny bitmask for one entity on one page. Callers must ensure allow&deny == 0
	// before calling; the schema also enforces it via CHECK.
	SetOverride(ctx context.Context, pageID, entityID int64, allow, deny Flags) error

	// DeleteOverride removes a page permission override. Returns ErrOverrideNotFound if none existed.
	DeleteOverride(ctx context.Context, pageID, entityID int64) error
}

// PageLookup resolves a page title to its page ID, for the page-scoped resolution query. Satisfied by
// internal/wiki's repository; kept as a narrow interface here so internal/permission never imports internal/wiki.
type PageLookup interface {
	PageIDForTitle(ctx context.Context, guildID int64, title string) (pageID int64, found bool, err error)
}

// PrivilegeChecker reports whether a member bypasses all permission checks. Satisfied by internal/guild.Checker,
// which privileges the guild's recorded owner and the globally configured bot owner; guild administrator status is
// not consulted.
type PrivilegeChecker interface {
	IsPrivileged(ctx context.Context, guildID, userID int64) (bool, error)
}
