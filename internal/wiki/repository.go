package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// NewPGRepository creates a new PostgreSQL-backed page repository.
func NewPGRepository(db *pgxpool.Pool, cat *querycat.Catalog, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, cat: cat, log: logger}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every method transparently run inside a caller's
// transaction (via postgres.TxFromContext) or fall back to the pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *PGRepository) querier(ctx context.Context) querier {
	if tx, ok := postgres.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

func (r *PGRepository) GetPage(ctx context.Context, guildID int64, title string, withContent bool) (*PageDetail, error) {
	name := "get_page"
	if withContent {
		name = "get_page_with_content"
	}
	sql, err := r.cat.Query(name)
	if err != nil {
		return nil, err
	}

	var d PageDetail
	row := r.querier(ctx).QueryRow(ctx, sql, guildID, title)
	if withContent {
		err = row.Scan(&d.PageID, &d.GuildID, &d.Title, &d.LatestRevision, &d.CreatedAt, &d.Body)
	} else {
		err = row.Scan(&d.PageID, &d.GuildID, &d.Title, &d.LatestRevision, &d.CreatedAt)
	}
	if isNoRows(err) {
		return nil, ErrPageNotFound{Title: title}
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return &d, nil
}

func (r *PGRepository) ResolvePage(ctx context.Context, guildID int64, title string) (*Resolved, error) {
	aliasSQL, err := r.cat.Query("get_alias")
	if err != nil {
		return nil, err
	}
	pageSQL, err := r.cat.Query("get_page")
	if err != nil {
		return nil, err
	}

	var aliasID, targetPageID int64
	err = r.querier(ctx).QueryRow(ctx, aliasSQL, guildID, title).Scan(&aliasID, &targetPageID)
	if err == nil {
		return &Resolved{PageID: targetPageID, Title: title, IsAlias: true}, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("get alias: %w", err)
	}

	var pageID int64
	var guild int64
	var pageTitle string
	var latest *int64
	var createdAt time.Time
	err = r.querier(ctx).QueryRow(ctx, pageSQL, guildID, title).Scan(&pageID, &guild, &pageTitle, &latest, &createdAt)
	if err == nil {
		return &Resolved{PageID: pageID, Title: pageTitle, IsAlias: false}, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return nil, ErrPageNotFound{Title: title}
}

// PageIDForTitle implements permission.PageLookup: an alias resolves to the page it targets, since page permission
// overrides are keyed on the underlying page regardless of which title a caller used to reach it.
func (r *PGRepository) PageIDForTitle(ctx context.Context, guildID int64, title string) (int64, bool, error) {
	resolved, err := r.ResolvePage(ctx, guildID, title)
	if err != nil {
		var notFound ErrPageNotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return resolved.PageID, true, nil
}

func (r *PGRepository) TitleAvailable(ctx context.Context, guildID int64, title string) (bool, error) {
	sql, err := r.cat.Query("title_available_pages")
	if err != nil {
		return false, err
	}
	var available bool
	if err := r.querier(ctx).QueryRow(ctx, sql, guildID, title).Scan(&available); err != nil {
		return false, fmt.Errorf("check title available: %w", err)
	}
	return available, nil
}

func (r *PGRepository) TitleOrAliasAvailable(ctx context.Context, guildID int64, title string) (bool, error) {
	sql, err := r.cat.Query("title_available_pages_and_aliases")
	if err != nil {
		return false, err
	}
	var available bool
	if err := r.querier(ctx).QueryRow(ctx, sql, guildID, title).Scan(&available); err != nil {
		return false, fmt.Errorf("check title or alias available: %w", err)
	}
	return available, nil
}

func (r *PGRepository) CreatePage(ctx context.Context, guildID, authorID int64, title, content string) (*Page, error) {
	createPageSQL, err := r.cat.Query("create_page")
	if err != nil {
		return nil, err
	}
	createContentSQL, err := r.cat.Query("create_content")
	if err != nil {
		return nil, err
	}
	createRevisionSQL, err := r.cat.Query("create_revision")
	if err != nil {
		return nil, err
	}
	setLatestSQL, err := r.cat.Query("set_latest_revision")
	if err != nil {
		return nil, err
	}

	var page Page
	err = postgres.WithSerializableTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		available, err := r.TitleOrAliasAvailable(ctx, guildID, title)
		if err != nil {
			return err
		}
		if !available {
			return ErrPageExists{Title: title}
		}

		page = Page{GuildID: guildID, Title: title}
		err = tx.QueryRow(ctx, createPageSQL, guildID, title).Scan(&page.PageID, &page.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ErrPageExists{Title: title}
			}
			return fmt.Errorf("insert page: %w", err)
		}

		var contentID int64
		if err := tx.QueryRow(ctx, createContentSQL, content).Scan(&contentID); err != nil {
			return fmt.Errorf("insert content: %w", err)
		}

		var revisionID int64
		var revised time.Time
		err = tx.QueryRow(ctx, createRevisionSQL, page.PageID, authorID, contentID, title).Scan(&revisionID, &revised)
		if err != nil {
			return fmt.Errorf("insert first revision: %w", err)
		}

		if _, err := tx.Exec(ctx, setLatestSQL, page.PageID, revisionID); err != nil {
			return fmt.Errorf("set latest revision: %w", err)
		}
		page.LatestRevision = &revisionID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (r *PGRepository) RevisePage(ctx context.Context, guildID, authorID int64, title, content string) (string, error) {
	createContentSQL, err := r.cat.Query("create_content")
	if err != nil {
		return "", err
	}
	createRevisionSQL, err := r.cat.Query("create_revision")
	if err != nil {
		return "", err
	}
	setLatestSQL, err := r.cat.Query("set_latest_revision")
	if err != nil {
		return "", err
	}

	var followedAlias string
	err = postgres.WithSerializableTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		resolved, err := r.ResolvePage(ctx, guildID, title)
		if err != nil {
			return err
		}

		var contentID int64
		if err := tx.QueryRow(ctx, createContentSQL, content).Scan(&contentID); err != nil {
			return fmt.Errorf("insert content: %w", err)
		}

		var revisionID int64
		var revised time.Time
		err = tx.QueryRow(ctx, createRevisionSQL, resolved.PageID, authorID, contentID, resolved.Title).Scan(&revisionID, &revised)
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}

		if _, err := tx.Exec(ctx, setLatestSQL, resolved.PageID, revisionID); err != nil {
			return fmt.Errorf("set latest revision: %w", err)
		}

		if resolved.IsAlias {
			followedAlias = resolved.Title
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return followedAlias, nil
}

func (r *PGRepository) RenamePage(ctx context.Context, guildID, authorID int64, title, newTitle string) error {
	if sameTitle(title, newTitle) {
		return nil
	}

	renameSQL, err := r.cat.Query("rename_page")
	if err != nil {
		return err
	}
	contentIDSQL, err := r.cat.Query("get_content_id_for_page")
	if err != nil {
		return err
	}
	createRevisionSQL, err := r.cat.Query("create_revision")
	if err != nil {
		return err
	}
	setLatestSQL, err := r.cat.Query("set_latest_revision")
	if err != nil {
		return err
	}

	return postgres.WithSerializableTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		available, err := r.TitleAvailable(ctx, guildID, newTitle)
		if err != nil {
			return err
		}
		if !available {
			return ErrPageExists{Title: newTitle}
		}

		var pageID int64
		err = tx.QueryRow(ctx, renameSQL, guildID, title, newTitle).Scan(&pageID)
		if isNoRows(err) {
			return ErrPageNotFound{Title: title}
		}
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ErrPageExists{Title: newTitle}
			}
			return fmt.Errorf("rename page: %w", err)
		}

		var page Page
		err = tx.QueryRow(ctx, r.cat.MustQuery("get_page"), guildID, newTitle).Scan(
			&page.PageID, &page.GuildID, &page.Title, &page.LatestRevision, &page.CreatedAt)
		if err != nil {
			return fmt.Errorf("reload renamed page: %w", err)
		}

		var contentID int64
		if err := tx.QueryRow(ctx, contentIDSQL, *page.LatestRevision).Scan(&contentID); err != nil {
			return fmt.Errorf("get current content id: %w", err)
		}

		var revisionID int64
		var revised time.Time
		err = tx.QueryRow(ctx, createRevisionSQL, pageID, authorID, contentID, newTitle).Scan(&revisionID, &revised)
		if err != nil {
			return fmt.Errorf("log rename revision: %w", err)
		}
		if _, err := tx.Exec(ctx, setLatestSQL, pageID, revisionID); err != nil {
			return fmt.Errorf("set latest revision: %w", err)
		}
		return nil
	})
}

func (r *PGRepository) DeletePage(ctx context.Context, guildID int64, title string) (bool, error) {
	deletePageSQL, err := r.cat.Query("delete_page")
	if err != nil {
		return false, err
	}
	deleteAliasSQL, err := r.cat.Query("delete_alias")
	if err != nil {
		return false, err
	}

	var wasAlias bool
	err = postgres.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		resolved, err := r.ResolvePage(ctx, guildID, title)
		if err != nil {
			return err
		}
		wasAlias = resolved.IsAlias

		if wasAlias {
			tag, err := tx.Exec(ctx, deleteAliasSQL, guildID, title)
			if err != nil {
				return fmt.Errorf("delete alias: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("page %q resolved as an alias but delete_alias affected no rows", title)
			}
			return nil
		}

		tag, err := tx.Exec(ctx, deletePageSQL, guildID, title)
		if err != nil {
			return fmt.Errorf("delete page: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("page %q resolved as a page but delete_page affected no rows", title)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return wasAlias, nil
}

func (r *PGRepository) AliasPage(ctx context.Context, guildID int64, alias, target string) error {
	createAliasSQL, err := r.cat.Query("create_alias")
	if err != nil {
		return err
	}

	return postgres.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		targetPage, err := r.GetPage(ctx, guildID, target, false)
		if err != nil {
			return err
		}

		available, err := r.TitleOrAliasAvailable(ctx, guildID, alias)
		if err != nil {
			return err
		}
		if !available {
			return ErrPageExists{Title: alias}
		}

		_, err = tx.Exec(ctx, createAliasSQL, guildID, alias, targetPage.PageID)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ErrPageExists{Title: alias}
			}
			return fmt.Errorf("insert alias: %w", err)
		}
		return nil
	})
}

func (r *PGRepository) GetPageRevisions(ctx context.Context, guildID int64, title string) ([]Revision, error) {
	sql, err := r.cat.Query("get_page_revisions")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID, title)
	if err != nil {
		return nil, fmt.Errorf("query page revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.RevisionID, &rev.PageID, &rev.AuthorID, &rev.Revised, &rev.ContentID, &rev.Title); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

func (r *PGRepository) GetAllPages(ctx context.Context, guildID int64) ([]TitledPage, error) {
	sql, err := r.cat.Query("get_all_pages")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID)
	if err != nil {
		return nil, fmt.Errorf("query all pages: %w", err)
	}
	defer rows.Close()

	var pages []TitledPage
	for rows.Next() {
		var p TitledPage
		if err := rows.Scan(&p.PageID, &p.Title); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *PGRepository) GetRecentRevisions(ctx context.Context, guildID int64, cutoff time.Time) ([]Revision, error) {
	sql, err := r.cat.Query("get_recent_revisions")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query recent revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.RevisionID, &rev.PageID, &rev.AuthorID, &rev.Revised, &rev.ContentID, &rev.Title); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

func (r *PGRepository) GetIndividualRevisions(ctx context.Context, guildID int64, revisionIDs []int64) ([]Revision, error) {
	sql, err := r.cat.Query("get_individual_revisions")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID, revisionIDs)
	if err != nil {
		return nil, fmt.Errorf("query individual revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.RevisionID, &rev.PageID, &rev.AuthorID, &rev.Revised, &rev.ContentID, &rev.Title); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(revisions) != len(uniqueInt64s(revisionIDs)) {
		return nil, ErrRevisionNotFound{RevisionIDs: revisionIDs}
	}
	return revisions, nil
}

func (r *PGRepository) SearchPages(ctx context.Context, guildID int64, query string) ([]TitledPage, error) {
	sql, err := r.cat.Query("search_pages")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID, query)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	var pages []TitledPage
	for rows.Next() {
		var p TitledPage
		var score float64
		if err := rows.Scan(&p.PageID, &p.Title, &score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *PGRepository) PageCount(ctx context.Context, guildID int64) (int64, error) {
	sql, err := r.cat.Query("page_count")
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.querier(ctx).QueryRow(ctx, sql, guildID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

func (r *PGRepository) RevisionsCount(ctx context.Context, guildID int64, cutoff time.Time) (int64, error) {
	sql, err := r.cat.Query("revisions_count")
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.querier(ctx).QueryRow(ctx, sql, guildID, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return count, nil
}

func (r *PGRepository) PageUses(ctx context.Context, guildID int64, title string, cutoff time.Time) (int64, error) {
	sql, err := r.cat.Query("page_uses_count", "title")
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.querier(ctx).QueryRow(ctx, sql, guildID, cutoff, title).Scan(&count); err != nil {
		return 0, fmt.Errorf("count page uses: %w", err)
	}
	return count, nil
}

// TotalPageUses returns how many page lookups of any title were logged in guildID since cutoff, the guild-wide
// counterpart to PageUses' per-title count.
func (r *PGRepository) TotalPageUses(ctx context.Context, guildID int64, cutoff time.Time) (int64, error) {
	sql, err := r.cat.Query("page_uses_count")
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.querier(ctx).QueryRow(ctx, sql, guildID, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("count total page uses: %w", err)
	}
	return count, nil
}

func (r *PGRepository) TopPages(ctx context.Context, guildID int64, cutoff time.Time) ([]PageUseCount, error) {
	sql, err := r.cat.Query("top_pages")
	if err != nil {
		return nil, err
	}
	rows, err := r.querier(ctx).Query(ctx, sql, guildID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query top pages: %w", err)
	}
	defer rows.Close()

	var pages []PageUseCount
	for rows.Next() {
		var p PageUseCount
		if err := rows.Scan(&p.Title, &p.Uses); err != nil {
			return nil, fmt.Errorf("scan top page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *PGRepository) TopEditors(ctx context.Context, guildID int64, cutoff time.Time) ([]Editor, error) {
	sql, err := r.cat.Query("top_editors")
	if err != nil {
		return nil, err
	}
	return r.queryEditors(ctx, sql, guildID, cutoff)
}

func (r *PGRepository) TopPageEditors(ctx context.Context, guildID int64, title string, cutoff time.Time) ([]Editor, error) {
	sql, err := r.cat.Query("top_page_editors")
	if err != nil {
		return nil, err
	}
	editors, err := r.queryEditors(ctx, sql, guildID, title, cutoff)
	if err != nil {
		return nil, err
	}
	if len(editors) == 0 {
		if _, err := r.GetPage(ctx, guildID, title, false); err != nil {
			return nil, err
		}
	}
	return editors, nil
}

func (r *PGRepository) queryEditors(ctx context.Context, sql string, args ...any) ([]Editor, error) {
	rows, err := r.querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query editors: %w", err)
	}
	defer rows.Close()

	var editors []Editor
	for rows.Next() {
		var e Editor
		if err := rows.Scan(&e.AuthorID, &e.Edits); err != nil {
			return nil, fmt.Errorf("scan editor: %w", err)
		}
		editors = append(editors, e)
	}
	return editors, rows.Err()
}

func (r *PGRepository) LogPageUse(ctx context.Context, guildID int64, title string) error {
	sql, err := r.cat.Query("log_page_use")
	if err != nil {
		return err
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, guildID, title); err != nil {
		return fmt.Errorf("log page use: %w", err)
	}
	return nil
}

func sameTitle(a, b string) bool {
	return strings.EqualFold(a, b)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func uniqueInt64s(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
