package watch

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

// NewPGRepository creates a new PostgreSQL-backed watch repository.
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

func (r *PGRepository) Watch(ctx context.Context, pageID, userID int64) error {
	sql, err := r.cat.Query("watch_page")
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, sql, pageID, userID); err != nil {
		return fmt.Errorf("insert watch subscription: %w", err)
	}
	return nil
}

func (r *PGRepository) Unwatch(ctx context.Context, pageID, userID int64) error {
	sql, err := r.cat.Query("unwatch_page")
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, pageID, userID)
	if err != nil {
		return fmt.Errorf("delete watch subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotWatching
	}
	return nil
}

func (r *PGRepository) WatchList(ctx context.Context, guildID, userID int64) ([]TitledPage, error) {
	sql, err := r.cat.Query("watch_list")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("query watch list: %w", err)
	}
	defer rows.Close()

	var pages []TitledPage
	for rows.Next() {
		var p TitledPage
		if err := rows.Scan(&p.PageID, &p.Title); err != nil {
			return nil, fmt.Errorf("scan watched page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *PGRepository) Subscribers(ctx context.Context, pageID int64) ([]int64, error) {
	sql, err := r.cat.Query("page_subscribers")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, pageID)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

func (r *PGRepository) RevisionDiff(ctx context.Context, revisionID int64) (*RevisionPair, error) {
	sql, err := r.cat.Query("get_revision_and_previous")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, revisionID)
	if err != nil {
		return nil, fmt.Errorf("query revision and previous: %w", err)
	}
	defer rows.Close()

	var pair RevisionPair
	found := false
	for rows.Next() {
		var revID, pageID, guildID, authorID, contentID int64
		var revised time.Time
		var title, body string
		if err := rows.Scan(&revID, &pageID, &guildID, &authorID, &revised, &contentID, &title, &body); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		_ = revID
		_ = contentID
		if !found {
			pair.GuildID = guildID
			pair.PageID = pageID
			pair.Title = title
			pair.AuthorID = authorID
			pair.Revised = revised
			pair.Body = body
			found = true
		} else {
			prev := body
			pair.PreviousBody = &prev
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("watch: revision not found")
	}
	return &pair, nil
}
