package wiki

import (
	"context"
	"time"
)

// PageDetail is a page row together with its latest revision's rendered content.
type PageDetail struct {
	Page
	Body string
}

// Repository is the data-access contract for pages, revisions, aliases, and usage statistics. It performs no
// permission checks; Service wraps it with the checks spec.md assigns to each operation.
type Repository interface {
	// GetPage returns a page by exact title (never resolving an alias). withContent also loads the latest
	// revision's body; omit it for existence checks that don't need the (potentially large) content.
	GetPage(ctx context.Context, guildID int64, title string, withContent bool) (*PageDetail, error)

	// ResolvePage resolves title through one hop of alias indirection: an alias first, then a direct page match.
	ResolvePage(ctx context.Context, guildID int64, title string) (*Resolved, error)

	// PageIDForTitle resolves title (alias or page) to a page ID, satisfying permission.PageLookup. Permission
	// overrides always key on the underlying page, so an alias resolves to its target.
	PageIDForTitle(ctx context.Context, guildID int64, title string) (pageID int64, found bool, err error)

	// TitleAvailable reports whether title is free of any existing page (ignoring aliases). Used by rename_page,
	// which may collide with a page but is allowed to take over an alias title's name (the alias is a separate
	// namespace entry pointing elsewhere).
	TitleAvailable(ctx context.Context, guildID int64, title string) (bool, error)

	// TitleOrAliasAvailable reports whether title is free of both existing pages and aliases. Used by create_page
	// and alias_page, whose titles must be unique across both.
	TitleOrAliasAvailable(ctx context.Context, guildID int64, title string) (bool, error)

	// CreatePage creates a new page with an initial revision. Returns ErrPageExists if title collides.
	CreatePage(ctx context.Context, guildID, authorID int64, title, content string) (*Page, error)

	// RevisePage appends a new revision to the page named title. If title is an alias, the revision is recorded
	// against the alias's target page and the target's own title is returned so the caller can report it.
	RevisePage(ctx context.Context, guildID, authorID int64, title, content string) (followedAlias string, err error)

	// RenamePage changes a page's title in place, recording the rename as a revision against the same content.
	// Returns ErrPageNotFound if title doesn't name a page, ErrPageExists if newTitle collides.
	RenamePage(ctx context.Context, guildID, authorID int64, title, newTitle string) error

	// DeletePage deletes a page or an alias named title, reporting which it was.
	DeletePage(ctx context.Context, guildID int64, title string) (wasAlias bool, err error)

	// AliasPage creates alias pointing at target. Returns ErrPageNotFound if target doesn't name a page,
	// ErrPageExists if alias collides with an existing page or alias title.
	AliasPage(ctx context.Context, guildID int64, alias, target string) error

	// GetPageRevisions returns every revision of title (which must name a page, not an alias), newest first.
	GetPageRevisions(ctx context.Context, guildID int64, title string) ([]Revision, error)

	// GetAllPages returns every page in the guild, ordered by title.
	GetAllPages(ctx context.Context, guildID int64) ([]TitledPage, error)

	// GetRecentRevisions returns every revision made since cutoff, newest first.
	GetRecentRevisions(ctx context.Context, guildID int64, cutoff time.Time) ([]Revision, error)

	// GetIndividualRevisions returns the named revisions, sorted by revision ID. Returns ErrRevisionNotFound if
	// any requested ID doesn't exist in the guild.
	GetIndividualRevisions(ctx context.Context, guildID int64, revisionIDs []int64) ([]Revision, error)

	// SearchPages returns pages whose title is similar to query, most similar first.
	SearchPages(ctx context.Context, guildID int64, query string) ([]TitledPage, error)

	// PageCount returns the number of pages in the guild.
	PageCount(ctx context.Context, guildID int64) (int64, error)

	// RevisionsCount returns the number of revisions made since cutoff.
	RevisionsCount(ctx context.Context, guildID int64, cutoff time.Time) (int64, error)

	// PageUses returns how many times title was looked up since cutoff.
	PageUses(ctx context.Context, guildID int64, title string, cutoff time.Time) (int64, error)

	// TotalPageUses returns how many page lookups of any title were logged in the guild since cutoff.
	TotalPageUses(ctx context.Context, guildID int64, cutoff time.Time) (int64, error)

	// TopPages returns the most-looked-up pages since cutoff.
	TopPages(ctx context.Context, guildID int64, cutoff time.Time) ([]PageUseCount, error)

	// TopEditors returns the members with the most revisions since cutoff.
	TopEditors(ctx context.Context, guildID int64, cutoff time.Time) ([]Editor, error)

	// TopPageEditors returns the members with the most revisions to title since cutoff. Returns ErrPageNotFound if
	// title names no page; a page with no revisions since cutoff yields an empty result instead.
	TopPageEditors(ctx context.Context, guildID int64, title string, cutoff time.Time) ([]Editor, error)

	// LogPageUse records a lookup of title for use-count statistics.
	LogPageUse(ctx context.Context, guildID int64, title string) error
}
