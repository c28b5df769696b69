package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// NewPGRepository creates a new PostgreSQL-backed binding repository.
func NewPGRepository(db *pgxpool.Pool, cat *querycat.Catalog, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, cat: cat, log: logger}
}

func (r *PGRepository) querier(ctx context.Context) interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx, ok := postgres.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

func (r *PGRepository) Bind(ctx context.Context, channelID, messageID, pageID int64) error {
	sql, err := r.cat.Query("bind")
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, channelID, messageID, pageID); err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}
	return nil
}

func (r *PGRepository) Unbind(ctx context.Context, messageID int64) error {
	sql, err := r.cat.Query("unbind")
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, messageID)
	if err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotBound
	}
	return nil
}

func (r *PGRepository) GetBoundPage(ctx context.Context, messageID int64) (*Binding, error) {
	sql, err := r.cat.Query("get_bound_page")
	if err != nil {
		return nil, err
	}
	var b Binding
	err = r.querier(ctx).QueryRow(ctx, sql, messageID).Scan(&b.MessageID, &b.ChannelID, &b.PageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotBound
	}
	if err != nil {
		return nil, fmt.Errorf("get bound page: %w", err)
	}
	return &b, nil
}

func (r *PGRepository) BoundMessages(ctx context.Context, pageID int64) ([]Binding, error) {
	sql, err := r.cat.Query("bound_messages")
	if err != nil {
		return nil, err
	}
	return r.queryBindings(ctx, sql, pageID)
}

func (r *PGRepository) GuildBindings(ctx context.Context, guildID int64) ([]Binding, error) {
	sql, err := r.cat.Query("guild_bindings")
	if err != nil {
		return nil, err
	}
	return r.queryBindings(ctx, sql, guildID)
}

func (r *PGRepository) queryBindings(ctx context.Context, sql string, args ...any) ([]Binding, error) {
	rows, err := r.querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.MessageID, &b.ChannelID, &b.PageID); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *PGRepository) UnbindAll(ctx context.Context, pageID int64) error {
	sql, err := r.cat.Query("delete_all_bindings")
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, pageID); err != nil {
		return fmt.Errorf("delete all bindings: %w", err)
	}
	return nil
}

func (r *PGRepository) RevisionContent(ctx context.Context, revisionID int64) (int64, string, error) {
	sql, err := r.cat.Query("get_revision")
	if err != nil {
		return 0, "", err
	}

	var revID, pageID, authorID, contentID int64
	var revised time.Time
	var title string
	err = r.querier(ctx).QueryRow(ctx, sql, revisionID).Scan(&revID, &pageID, &authorID, &revised, &contentID, &title)
	if err != nil {
		return 0, "", fmt.Errorf("get revision: %w", err)
	}

	bodySQL, err := r.cat.Query("get_content_body")
	if err != nil {
		return 0, "", err
	}
	var body string
	if err := r.querier(ctx).QueryRow(ctx, bodySQL, contentID).Scan(&body); err != nil {
		return 0, "", fmt.Errorf("get content body: %w", err)
	}
	return pageID, body, nil
}
