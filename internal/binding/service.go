package binding

import (
	"context"
	"fmt"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/pagekeeper/pagekeeper/internal/eventbus"
	"github.com/pagekeeper/pagekeeper/internal/permission"
)

// Service mirrors a page's latest revision into every chat message bound to it.
type Service struct {
	repo      Repository
	pages     PageLookup
	auth      Authorizer
	messenger Messenger
	sanitizer *bluemonday.Policy
	log       zerolog.Logger
}

// NewService creates a new binding service. The sanitizer strips any markup a wiki page's content could carry that
// the chat platform would otherwise interpret as formatting or mentions when mirrored into a message body.
func NewService(repo Repository, pages PageLookup, auth Authorizer, messenger Messenger, logger zerolog.Logger) *Service {
	return &Service{repo: repo, pages: pages, auth: auth, messenger: messenger, sanitizer: bluemonday.StrictPolicy(), log: logger}
}

// Bind records channelID/messageID as a mirror of the page named title, after checking edit permission on it.
func (s *Service) Bind(ctx context.Context, guildID, userID, channelID, messageID int64, title string) error {
	pageID, err := s.resolvePageID(ctx, guildID, title)
	if err != nil {
		return err
	}
	if err := s.auth.Authorize(ctx, guildID, userID, pageID, permission.FlagEdit); err != nil {
		return err
	}
	return s.repo.Bind(ctx, channelID, messageID, pageID)
}

// Unbind removes messageID's binding, after checking edit permission on the page it mirrored.
func (s *Service) Unbind(ctx context.Context, guildID, userID, messageID int64) error {
	bound, err := s.repo.GetBoundPage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.auth.Authorize(ctx, guildID, userID, bound.PageID, permission.FlagEdit); err != nil {
		return err
	}
	return s.repo.Unbind(ctx, messageID)
}

// BoundMessages returns every message bound to the page named title, after checking view permission on it.
func (s *Service) BoundMessages(ctx context.Context, guildID, userID int64, title string) ([]Binding, error) {
	pageID, err := s.resolvePageID(ctx, guildID, title)
	if err != nil {
		return nil, err
	}
	if err := s.auth.Authorize(ctx, guildID, userID, pageID, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.BoundMessages(ctx, pageID)
}

// GuildBindings returns every binding in guildID, after checking guild-scoped view permission.
func (s *Service) GuildBindings(ctx context.Context, guildID, userID int64) ([]Binding, error) {
	if err := s.auth.AuthorizeGuild(ctx, guildID, userID, permission.FlagView); err != nil {
		return nil, err
	}
	return s.repo.GuildBindings(ctx, guildID)
}

func (s *Service) resolvePageID(ctx context.Context, guildID int64, title string) (int64, error) {
	pageID, found, err := s.pages.PageIDForTitle(ctx, guildID, title)
	if err != nil {
		return 0, fmt.Errorf("resolve page title: %w", err)
	}
	if !found {
		return 0, permission.ErrPageNotFound{Title: title}
	}
	return pageID, nil
}

// DispatchEdit mirrors revisionID's content into every message bound to its page. Every edit is issued concurrently;
// a failing edit is logged and does not cancel or block the others, matching DispatchDelete's collect-and-log
// semantics rather than the original's edit-path all-or-nothing asyncio.gather.
func (s *Service) DispatchEdit(ctx context.Context, revisionID int64) error {
	pageID, content, err := s.repo.RevisionContent(ctx, revisionID)
	if err != nil {
		return err
	}

	bound, err := s.repo.BoundMessages(ctx, pageID)
	if err != nil {
		return err
	}
	if len(bound) == 0 {
		return nil
	}

	sanitized := s.sanitizer.Sanitize(content)

	errs := concurrentEach(ctx, bound, func(ctx context.Context, b Binding) error {
		return s.messenger.EditMessage(ctx, b.ChannelID, b.MessageID, sanitized)
	})
	for i, err := range errs {
		if err != nil {
			s.log.Warn().Err(err).Int64("message_id", bound[i].MessageID).Msg("failed to mirror page edit")
		}
	}
	return nil
}

// DispatchDelete deletes every message bound to pageID, since the page they mirrored no longer exists. Failures are
// logged per message, never aborting the rest.
func (s *Service) DispatchDelete(ctx context.Context, pageID int64) error {
	bound, err := s.repo.BoundMessages(ctx, pageID)
	if err != nil {
		return err
	}
	if len(bound) == 0 {
		return nil
	}

	errs := concurrentEach(ctx, bound, func(ctx context.Context, b Binding) error {
		return s.messenger.DeleteMessage(ctx, b.ChannelID, b.MessageID)
	})
	for i, err := range errs {
		if err != nil {
			s.log.Warn().Err(err).Int64("message_id", bound[i].MessageID).Msg("failed to delete mirrored message")
		}
	}
	return nil
}

// HandleEvent adapts Service to eventbus.Consumer, mirroring a page_edit event's revision into bound messages and a
// page_delete event's page ID into deleting them. Any other event type is ignored.
func (s *Service) HandleEvent(ctx context.Context, event eventbus.Event) error {
	switch e := event.(type) {
	case eventbus.PageEdited:
		return s.DispatchEdit(ctx, e.RevisionID)
	case eventbus.PageDeleted:
		return s.DispatchDelete(ctx, e.PageID)
	default:
		return nil
	}
}

// concurrentEach runs fn over every item concurrently, returning one error per item (nil on success) in the same
// order as items. No item's failure affects any other item's execution or result.
func concurrentEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		go func(i int, item T) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			errs[i] = fn(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return errs
}
