package guild

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the guild package.
var (
	ErrNotFound          = errors.New("guild not found")
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
	ErrMaxRolesReached   = errors.New("maximum number of roles reached")
	ErrEveryoneImmutable = errors.New("the @everyone role cannot be deleted")
)

// Guild is one tenant: a chat platform server this wiki is hosted inside.
type Guild struct {
	GuildID   int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

// Role holds a guild's role-level permission bitmask and hierarchy position.
type Role struct {
	RoleID      int64
	GuildID     int64
	Permissions int32
	IsEveryone  bool
	Position    int
	CreatedAt   time.Time
}

// Repository defines the data-access contract for guild and role operations.
type Repository interface {
	// Upsert records a guild's current name and owner, inserting a row the first time a guild is seen.
	Upsert(ctx context.Context, guildID int64, name string, ownerID int64) (*Guild, error)

	// Get returns a guild by ID.
	Get(ctx context.Context, guildID int64) (*Guild, error)

	// ListRoles returns all roles in a guild ordered by position.
	ListRoles(ctx context.Context, guildID int64) ([]Role, error)

	// CreateRole inserts a new role at the bottom of the hierarchy (highest position number). Fails with
	// ErrMaxRolesReached if the guild already holds maxRoles roles.
	CreateRole(ctx context.Context, guildID, roleID int64, maxRoles int) (*Role, error)

	// DeleteRole removes a role. The @everyone role cannot be removed.
	DeleteRole(ctx context.Context, guildID, roleID int64) error

	// SetMemberRoles replaces the full set of roles a member holds in a guild, mirroring the chat platform's own
	// role assignment rather than incrementally adding and removing.
	SetMemberRoles(ctx context.Context, guildID, userID int64, roleIDs []int64) error
}

// OwnerPolicy reports the globally configured bot owner, who bypasses every permission check in every guild. A zero
// value disables the bypass.
type OwnerPolicy struct {
	GlobalOwnerID int64
}

// Checker implements permission.PrivilegeChecker: a member is privileged if they own the guild outright or are the
// operator running this deployment.
type Checker struct {
	repo   Repository
	policy OwnerPolicy
}

// NewChecker creates a privilege checker backed by repo, with policy.GlobalOwnerID bypassing every guild.
func NewChecker(repo Repository, policy OwnerPolicy) *Checker {
	return &Checker{repo: repo, policy: policy}
}

// IsPrivileged reports whether userID bypasses permission checks in guildID: either they are the configured global
// owner, or they are that guild's owner.
func (c *Checker) IsPrivileged(ctx context.Context, guildID, userID int64) (bool, error) {
	if c.policy.GlobalOwnerID != 0 && userID == c.policy.GlobalOwnerID {
		return true, nil
	}

	g, err := c.repo.Get(ctx, guildID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return g.OwnerID == userID, nil
}
