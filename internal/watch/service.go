package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	"github.com/pagekeeper/pagekeeper/internal/eventbus"
	"github.com/pagekeeper/pagekeeper/internal/permission"
)

// Authorizer is the subset of permission.Resolver that Service needs to check and re-check a subscriber's standing.
type Authorizer interface {
	Authorize(ctx context.Context, guildID, userID, pageID int64, required permission.Flags) error
}

// PageLookup resolves a title (page or alias) to the underlying page ID, satisfied by internal/wiki.Repository.
type PageLookup interface {
	PageIDForTitle(ctx context.Context, guildID int64, title string) (pageID int64, found bool, err error)
}

// Service manages watch subscriptions and fans out edit/delete notifications to subscribers.
type Service struct {
	repo     Repository
	pages    PageLookup
	auth     Authorizer
	notifier Notifier
	log      zerolog.Logger
}

// NewService creates a new watch service.
func NewService(repo Repository, pages PageLookup, auth Authorizer, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, pages: pages, auth: auth, notifier: notifier, log: logger}
}

// WatchPage subscribes userID to the page named title, after checking view permission.
func (s *Service) WatchPage(ctx context.Context, guildID, userID int64, title string) error {
	pageID, err := s.resolvePageID(ctx, guildID, userID, title)
	if err != nil {
		return err
	}
	return s.repo.Watch(ctx, pageID, userID)
}

// UnwatchPage removes userID's subscription to the page named title.
func (s *Service) UnwatchPage(ctx context.Context, guildID, userID int64, title string) error {
	pageID, err := s.resolvePageID(ctx, guildID, userID, title)
	if err != nil {
		return err
	}
	return s.repo.Unwatch(ctx, pageID, userID)
}

// WatchList returns every page in guildID that userID watches.
func (s *Service) WatchList(ctx context.Context, guildID, userID int64) ([]TitledPage, error) {
	return s.repo.WatchList(ctx, guildID, userID)
}

func (s *Service) resolvePageID(ctx context.Context, guildID, userID int64, title string) (int64, error) {
	pageID, found, err := s.pages.PageIDForTitle(ctx, guildID, title)
	if err != nil {
		return 0, fmt.Errorf("resolve page title: %w", err)
	}
	if !found {
		return 0, permission.ErrPageNotFound{Title: title}
	}
	if err := s.auth.Authorize(ctx, guildID, userID, pageID, permission.FlagView); err != nil {
		return 0, err
	}
	return pageID, nil
}

// DispatchEdit notifies every subscriber of revisionID's page, skipping (not aborting on) any subscriber who has
// lost view permission since they subscribed — a permission failure for one subscriber must never suppress
// notifications to the rest.
func (s *Service) DispatchEdit(ctx context.Context, revisionID int64) error {
	pair, err := s.repo.RevisionDiff(ctx, revisionID)
	if err != nil {
		return err
	}

	subscribers, err := s.repo.Subscribers(ctx, pair.PageID)
	if err != nil {
		return err
	}

	diff := unifiedDiff(pair)
	notification := Notification{
		Kind:       NotificationEdit,
		GuildID:    pair.GuildID,
		PageID:     pair.PageID,
		Title:      pair.Title,
		RevisionID: revisionID,
		EditorID:   pair.AuthorID,
		Diff:       diff,
	}

	for _, userID := range subscribers {
		if err := s.auth.Authorize(ctx, pair.GuildID, userID, pair.PageID, permission.FlagView); err != nil {
			s.log.Debug().Err(err).Int64("user_id", userID).Int64("page_id", pair.PageID).
				Msg("skipping watch notification, subscriber lost view permission")
			continue
		}
		if err := s.notifier.Notify(ctx, userID, notification); err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to deliver watch notification")
		}
	}
	return nil
}

// DispatchDelete notifies every subscriber that guildID's page named title (pageID) was deleted. No permission
// recheck is performed: the page no longer exists to check view against, and the notification carries no content,
// only the fact and title of the deletion.
func (s *Service) DispatchDelete(ctx context.Context, guildID, pageID int64, title string) error {
	subscribers, err := s.repo.Subscribers(ctx, pageID)
	if err != nil {
		return err
	}

	notification := Notification{Kind: NotificationDelete, GuildID: guildID, PageID: pageID, Title: title}
	for _, userID := range subscribers {
		if err := s.notifier.Notify(ctx, userID, notification); err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to deliver delete notification")
		}
	}
	return nil
}

// HandleEvent adapts Service to eventbus.Consumer, dispatching a page_edit event to DispatchEdit and a page_delete
// event to DispatchDelete. Any other event type is ignored.
func (s *Service) HandleEvent(ctx context.Context, event eventbus.Event) error {
	switch e := event.(type) {
	case eventbus.PageEdited:
		return s.DispatchEdit(ctx, e.RevisionID)
	case eventbus.PageDeleted:
		return s.DispatchDelete(ctx, e.GuildID, e.PageID, e.Title)
	default:
		return nil
	}
}

func unifiedDiff(pair *RevisionPair) string {
	oldBody := ""
	if pair.PreviousBody != nil {
		oldBody = *pair.PreviousBody
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldBody),
		B:        difflib.SplitLines(pair.Body),
		FromFile: "previous",
		ToFile:   "current",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return strings.TrimRight(text, "\n")
}
