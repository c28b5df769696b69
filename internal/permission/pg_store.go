package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagekeeper/pagekeeper/internal/postgres"
	"github.com/pagekeeper/pagekeeper/internal/querycat"
)

// PGStore implements RoleStore and OverrideStore using PostgreSQL, with statements loaded from the permissions query
// catalog rather than inlined.
type PGStore struct {
	db  *pgxpool.Pool
	cat *querycat.Catalog
}

// NewPGStore creates a new PostgreSQL-backed permission store.
func NewPGStore(db *pgxpool.Pool, cat *querycat.Catalog) *PGStore {
	return &PGStore{db: db, cat: cat}
}

func (s *PGStore) querier(ctx context.Context) querier {
	if tx, ok := postgres.TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MemberRoles returns the permission bitmask of every role the member holds directly, plus the guild's @everyone
// role.
func (s *PGStore) MemberRoles(ctx context.Context, guildID, userID int64) ([]RoleEntry, error) {
	sql, err := s.cat.Query("role_permissions_for_member")
	if err != nil {
		return nil, err
	}

	rows, err := s.querier(ctx).Query(ctx, sql, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("query member roles: %w", err)
	}
	defer rows.Close()

	var entries []RoleEntry
	for rows.Next() {
		var e RoleEntry
		var perms int32
		if err := rows.Scan(&e.RoleID, &perms); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		e.Permissions = Flags(perms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EveryoneRole returns the guild's @everyone role entry, or (nil, nil) if none has been seeded yet.
func (s *PGStore) EveryoneRole(ctx context.Context, guildID int64) (*RoleEntry, error) {
	sql, err := s.cat.Query("everyone_role")
	if err != nil {
		return nil, err
	}

	var e RoleEntry
	var perms int32
	err = s.querier(ctx).QueryRow(ctx, sql, guildID).Scan(&e.RoleID, &perms, &e.Position)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query everyone role: %w", err)
	}
	e.Permissions = Flags(perms)
	e.IsEveryone = true
	return &e, nil
}

// HighestManagePermissionsRole returns the highest-ranked role (lowest position) the member holds that carries
// FlagManagePermissions, or (nil, nil) if none.
func (s *PGStore) HighestManagePermissionsRole(ctx context.Context, guildID, userID int64) (*RoleEntry, error) {
	sql, err := s.cat.Query("highest_manage_permissions_role")
	if err != nil {
		return nil, err
	}

	var e RoleEntry
	err = s.querier(ctx).QueryRow(ctx, sql, guildID, userID, int32(FlagManagePermissions)).Scan(&e.RoleID, &e.Position)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query highest manage-permissions role: %w", err)
	}
	return &e, nil
}

// RolePosition returns a role's position within its guild.
func (s *PGStore) RolePosition(ctx context.Context, guildID, roleID int64) (int, error) {
	sql, err := s.cat.Query("role_position")
	if err != nil {
		return 0, err
	}

	var pos int
	err = s.querier(ctx).QueryRow(ctx, sql, roleID, guildID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("query role position: %w", err)
	}
	return pos, nil
}

// SeedDefaultEveryone inserts FlagDefault for the guild's @everyone role if absent. Idempotent: a pre-existing row
// is left untouched.
func (s *PGStore) SeedDefaultEveryone(ctx context.Context, guildID, everyoneRoleID int64) error {
	sql, err := s.cat.Query("seed_default_everyone")
	if err != nil {
		return err
	}

	_, err = s.querier(ctx).Exec(ctx, sql, everyoneRoleID, guildID, int32(FlagDefault))
	if err != nil {
		return fmt.Errorf("seed default everyone: %w", err)
	}
	return nil
}

// SetRolePermissions overwrites a role's permission bitmask.
func (s *PGStore) SetRolePermissions(ctx context.Context, guildID, roleID int64, perms Flags) error {
	sql, err := s.cat.Query("set_role_permissions")
	if err != nil {
		return err
	}

	tag, err := s.querier(ctx).Exec(ctx, sql, roleID, guildID, int32(perms))
	if err != nil {
		return fmt.Errorf("set role permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set role permissions: role %d not found in guild %d", roleID, guildID)
	}
	return nil
}

// Overrides returns the page permission override rows for pageID whose entity is in entityIDs.
func (s *PGStore) Overrides(ctx context.Context, pageID int64, entityIDs []int64) ([]Override, error) {
	sql, err := s.cat.Query("page_overrides_for_entities")
	if err != nil {
		return nil, err
	}

	rows, err := s.querier(ctx).Query(ctx, sql, pageID, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("query page overrides: %w", err)
	}
	defer rows.Close()

	return scanOverrides(rows)
}

// AllOverrides returns every override row for a page.
func (s *PGStore) AllOverrides(ctx context.Context, pageID int64) ([]Override, error) {
	sql, err := s.cat.Query("get_page_overwrites")
	if err != nil {
		return nil, err
	}

	rows, err := s.querier(ctx).Query(ctx, sql, pageID)
	if err != nil {
		return nil, fmt.Errorf("query all page overrides: %w", err)
	}
	defer rows.Close()

	return scanOverrides(rows)
}

func scanOverrides(rows pgx.Rows) ([]Override, error) {
	var overrides []Override
	for rows.Next() {
		var o Override
		var allow, deny int32
		if err := rows.Scan(&o.EntityID, &allow, &deny); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Allow = Flags(allow)
		o.Deny = Flags(deny)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// SetOverride upserts the allow/deny bitmask for one entity on one page.
func (s *PGStore) SetOverride(ctx context.Context, pageID, entityID int64, allow, deny Flags) error {
	sql, err := s.cat.Query("set_page_overwrites")
	if err != nil {
		return err
	}

	_, err = s.querier(ctx).Exec(ctx, sql, pageID, entityID, int32(allow), int32(deny))
	if err != nil {
		return fmt.Errorf("set page override: %w", err)
	}
	return nil
}

// DeleteOverride removes a page permission override. Returns ErrOverrideNotFound if none existed.
func (s *PGStore) DeleteOverride(ctx context.Context, pageID, entityID int64) error {
	sql, err := s.cat.Query("unset_page_overwrites")
	if err != nil {
		return err
	}

	tag, err := s.querier(ctx).Exec(ctx, sql, pageID, entityID)
	if err != nil {
		return fmt.Errorf("delete page override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
