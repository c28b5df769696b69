package guild

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pagekeeper/pagekeeper/internal/postgres"
	"github.com/pagekeeper/pagekeeper/internal/querycat"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	cat *querycat.Catalog
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed guild repository.
func NewPGRepository(db *pgxpool.Pool, cat *querycat.Catalog, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, cat: cat, log: logger}
}

func (r *PGRepository) Upsert(ctx context.Context, guildID int64, name string, ownerID int64) (*Guild, error) {
	sql, err := r.cat.Query("upsert_guild")
	if err != nil {
		return nil, err
	}

	var g Guild
	err = r.db.QueryRow(ctx, sql, guildID, name, ownerID).Scan(&g.GuildID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert guild: %w", err)
	}
	return &g, nil
}

func (r *PGRepository) Get(ctx context.Context, guildID int64) (*Guild, error) {
	sql, err := r.cat.Query("get_guild")
	if err != nil {
		return nil, err
	}

	var g Guild
	err = r.db.QueryRow(ctx, sql, guildID).Scan(&g.GuildID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query guild: %w", err)
	}
	return &g, nil
}

func (r *PGRepository) ListRoles(ctx context.Context, guildID int64) ([]Role, error) {
	sql, err := r.cat.Query("list_roles")
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, guildID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.RoleID, &role.GuildID, &role.Permissions, &role.IsEveryone, &role.Position); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CreateRole inserts a new role at the bottom of guildID's hierarchy. roleID is supplied by the caller because it is
// the chat platform's own snowflake for a role that already exists there; this only mirrors it.
func (r *PGRepository) CreateRole(ctx context.Context, guildID, roleID int64, maxRoles int) (*Role, error) {
	countSQL, err := r.cat.Query("count_roles")
	if err != nil {
		return nil, err
	}
	positionSQL, err := r.cat.Query("next_role_position")
	if err != nil {
		return nil, err
	}
	insertSQL, err := r.cat.Query("insert_role")
	if err != nil {
		return nil, err
	}

	var role *Role
	err = postgres.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, countSQL, guildID).Scan(&count); err != nil {
			return fmt.Errorf("count roles: %w", err)
		}
		if count >= maxRoles {
			return ErrMaxRolesReached
		}

		var position int
		if err := tx.QueryRow(ctx, positionSQL, guildID).Scan(&position); err != nil {
			return fmt.Errorf("compute next position: %w", err)
		}

		var created Role
		err := tx.QueryRow(ctx, insertSQL, roleID, guildID, position).Scan(
			&created.RoleID, &created.GuildID, &created.Permissions, &created.IsEveryone, &created.Position,
		)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ErrRoleAlreadyExists
			}
			return fmt.Errorf("insert role: %w", err)
		}
		role = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (r *PGRepository) DeleteRole(ctx context.Context, guildID, roleID int64) error {
	deleteSQL, err := r.cat.Query("delete_role")
	if err != nil {
		return err
	}
	everyoneSQL, err := r.cat.Query("role_is_everyone")
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, deleteSQL, roleID, guildID)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var isEveryone bool
	err = r.db.QueryRow(ctx, everyoneSQL, roleID, guildID).Scan(&isEveryone)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("check role existence: %w", err)
	}
	return ErrEveryoneImmutable
}

// SetMemberRoles replaces the full set of roles a member holds, inside a transaction so partial updates are never
// observed.
func (r *PGRepository) SetMemberRoles(ctx context.Context, guildID, userID int64, roleIDs []int64) error {
	clearSQL, err := r.cat.Query("clear_member_roles")
	if err != nil {
		return err
	}
	addSQL, err := r.cat.Query("add_member_role")
	if err != nil {
		return err
	}

	return postgres.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearSQL, guildID, userID); err != nil {
			return fmt.Errorf("clear member roles: %w", err)
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx, addSQL, guildID, userID, roleID); err != nil {
				return fmt.Errorf("add member role: %w", err)
			}
		}
		return nil
	})
}
