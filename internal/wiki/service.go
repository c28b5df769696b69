package wiki

import (
	"context"
	"time"

	"github.com/pagekeeper/pagekeeper/internal/permission"
)

// Authorizer is the subset of permission.Resolver that Service needs. internal/permission.Resolver satisfies this.
type Authorizer interface {
	Authorize(ctx context.Context, guildID, userID, pageID int64, required permission.Flags) error
	AuthorizeByTitle(ctx context.Context, guildID, userID int64, title string, required permission.Flags) error
	AuthorizeGuild(ctx context.Context, guildID, userID int64, required permission.Flags) error
}

// Service combines Repository with permission checks, matching the distinct permission gate spec.md assigns to each
// wiki operation.
type Service struct {
	repo Repository
	auth Authorizer
}

// NewService creates a new wiki service.
func NewService(repo Repository, auth Authorizer) *Service {
	return &Service{repo: repo, auth: auth}
}

// GetPage returns a page by exact title after checking view permission. withContent also loads the body.
func (s *Service) GetPage(ctx context.Context, guildID, userID int64, title string, withContent bool) (*PageDetail, error) {
	if err := s.auth.AuthorizeByTitle(ctx, guildID, userID, title, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.GetPage(ctx, guildID, title, withContent)
}

// ResolvePage resolves title (alias or page) after checking view permission on the title as given — deliberately
// before resolving the alias, so that denying view on an alias's target also denies resolving the alias itself
// without revealing which page it points to.
func (s *Service) ResolvePage(ctx context.Context, guildID, userID int64, title string) (*Resolved, error) {
	if err := s.auth.AuthorizeByTitle(ctx, guildID, userID, title, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.ResolvePage(ctx, guildID, title)
}

// CreatePage validates title and content, checks guild-scoped create permission, then creates the page.
func (s *Service) CreatePage(ctx context.Context, guildID, userID int64, title, content string) (*Page, error) {
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	if err := s.auth.AuthorizeGuild(ctx, guildID, userID, permission.FlagCreate); err != nil {
		return nil, err
	}
	return s.repo.CreatePage(ctx, guildID, userID, title, content)
}

// AliasPage validates the alias title, checks guild-scoped create permission and view permission on target, then
// creates the alias.
func (s *Service) AliasPage(ctx context.Context, guildID, userID int64, alias, target string) error {
	if err := ValidateTitle(alias); err != nil {
		return err
	}
	if err := s.auth.AuthorizeGuild(ctx, guildID, userID, permission.FlagCreate); err != nil {
		return err
	}
	if err := s.auth.AuthorizeByTitle(ctx, guildID, userID, target, permission.FlagView); err != nil {
		return err
	}
	return s.repo.AliasPage(ctx, guildID, alias, target)
}

// RevisePage validates title and content, checks edit permission, then appends a revision. If title names an alias,
// the revision is recorded against the alias's target and its title is returned.
func (s *Service) RevisePage(ctx context.Context, guildID, userID int64, title, content string) (string, error) {
	if err := ValidateTitle(title); err != nil {
		return "", err
	}
	if err := ValidateContent(content); err != nil {
		return "", err
	}
	if err := s.auth.AuthorizeByTitle(ctx, guildID, userID, title, permission.FlagEdit); err != nil {
		return "", err
	}
	return s.repo.RevisePage(ctx, guildID, userID, title, content)
}

// Revert re-applies a prior revision's content as a new revision, implemented as revise_page one layer up: the
// caller resolves the historical content (via GetIndividualRevisions plus a content lookup) and passes it through
// RevisePage so reverting goes through the exact same validation, permission, and transaction path as any other
// edit.
func (s *Service) Revert(ctx context.Context, guildID, userID int64, title, historicalContent string) (string, error) {
	return s.RevisePage(ctx, guildID, userID, title, historicalContent)
}

// RenamePage validates the new title, checks rename permission, then renames the page.
func (s *Service) RenamePage(ctx context.Context, guildID, userID int64, title, newTitle string) error {
	if err := ValidateTitle(newTitle); err != nil {
		return err
	}
	if err := s.auth.AuthorizeByTitle(ctx, guildID, userID, title, permission.FlagRename); err != nil {
		return err
	}
	return s.repo.RenamePage(ctx, guildID, userID, title, newTitle)
}

// DeletePage deletes a page or alias named title. Deleting an alias only requires edit permission (it is a
// prerequisite to recreating it under a different title, and is far less destructive than deleting a page);
// deleting a page itself requires delete permission.
func (s *Service) DeletePage(ctx context.Context, guildID, userID int64, title string) (bool, error) {
	resolved, err := s.repo.ResolvePage(ctx, guildID, title)
	if err != nil {
		return false, err
	}

	required := permission.FlagDelete
	if resolved.IsAlias {
		required = permission.FlagEdit
	}
	if err := s.auth.Authorize(ctx, guildID, userID, resolved.PageID, required); err != nil {
		return false, err
	}
	return s.repo.DeletePage(ctx, guildID, title)
}

// GetPageRevisions returns every revision of title after checking view permission.
func (s *Service) GetPageRevisions(ctx context.Context, guildID, userID int64, title string) ([]Revision, error) {
	if err := s.auth.AuthorizeByTitle(ctx, guildID, userID, title, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.GetPageRevisions(ctx, guildID, title)
}

// GetAllPages returns every page in the guild after checking guild-scoped view permission.
func (s *Service) GetAllPages(ctx context.Context, guildID, userID int64) ([]TitledPage, error) {
	if err := s.auth.AuthorizeGuild(ctx, guildID, userID, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.GetAllPages(ctx, guildID)
}

// GetRecentRevisions returns revisions made since cutoff after checking guild-scoped view permission.
func (s *Service) GetRecentRevisions(ctx context.Context, guildID, userID int64, cutoff time.Time) ([]Revision, error) {
	if err := s.auth.AuthorizeGuild(ctx, guildID, userID, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.GetRecentRevisions(ctx, guildID, cutoff)
}

// SearchPages returns pages similar to query after checking guild-scoped view permission.
func (s *Service) SearchPages(ctx context.Context, guildID, userID int64, query string) ([]TitledPage, error) {
	if err := s.auth.AuthorizeGuild(ctx, guildID, userID, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.SearchPages(ctx, guildID, query)
}

// GetIndividualRevisions returns the named revisions. Used internally by rendering and diff code that already
// operates on revision IDs a permission-gated call surfaced, so it applies no permission check of its own — matching
// the original's get_individual_revisions, which never calls check_permissions either.
func (s *Service) GetIndividualRevisions(ctx context.Context, guildID int64, revisionIDs []int64) ([]Revision, error) {
	return s.repo.GetIndividualRevisions(ctx, guildID, revisionIDs)
}

// LogPageUse records a lookup of title for use-count statistics. No permission check: logging a use follows an
// already-permitted read.
func (s *Service) LogPageUse(ctx context.Context, guildID int64, title string) error {
	return s.repo.LogPageUse(ctx, guildID, title)
}

// PageCount, RevisionsCount, PageUses, TotalPageUses, TopPages, TopEditors, and TopPageEditors are unguarded
// statistics reads, matching the original: none of wiki/db.py's statistics methods call check_permissions.

func (s *Service) PageCount(ctx context.Context, guildID int64) (int64, error) {
	return s.repo.PageCount(ctx, guildID)
}

func (s *Service) RevisionsCount(ctx context.Context, guildID int64, cutoff time.Time) (int64, error) {
	return s.repo.RevisionsCount(ctx, guildID, cutoff)
}

func (s *Service) PageUses(ctx context.Context, guildID int64, title string, cutoff time.Time) (int64, error) {
	return s.repo.PageUses(ctx, guildID, title, cutoff)
}

func (s *Service) TotalPageUses(ctx context.Context, guildID int64, cutoff time.Time) (int64, error) {
	return s.repo.TotalPageUses(ctx, guildID, cutoff)
}

func (s *Service) TopPages(ctx context.Context, guildID int64, cutoff time.Time) ([]PageUseCount, error) {
	return s.repo.TopPages(ctx, guildID, cutoff)
}

func (s *Service) TopEditors(ctx context.Context, guildID int64, cutoff time.Time) ([]Editor, error) {
	return s.repo.TopEditors(ctx, guildID, cutoff)
}

func (s *Service) TopPageEditors(ctx context.Context, guildID int64, title string, cutoff time.Time) ([]Editor, error) {
	return s.repo.TopPageEditors(ctx, guildID, title, cutoff)
}
