// Package binding mirrors wiki pages into external chat messages and keeps those messages in sync with the page's
// latest revision.
package binding

import (
	"context"
	"errors"

	"github.com/pagekeeper/pagekeeper/internal/permission"
)

// ErrNotBound is returned when unbind or a bound-page lookup names a message with no binding.
var ErrNotBound = errors.New("message is not bound to a page")

// Authorizer is the subset of permission.Resolver that Service needs to gate binding operations.
type Authorizer interface {
	Authorize(ctx context.Context, guildID, userID, pageID int64, required permission.Flags) error
	AuthorizeGuild(ctx context.Context, guildID, userID int64, required permission.Flags) error
}

// PageLookup resolves a title (page or alias) to the underlying page ID, satisfied by internal/wiki.Repository.
type PageLookup interface {
	PageIDForTitle(ctx context.Context, guildID int64, title string) (pageID int64, found bool, err error)
}

// Binding is one (message, channel) pair mirroring a page's content.
type Binding struct {
	MessageID int64
	ChannelID int64
	PageID    int64
}

// Messenger edits or deletes the chat messages a binding mirrors into, satisfied by the external chat gateway this
// module mirrors into (out of scope per the page-store spec; exercised in tests by a fake).
type Messenger interface {
	// EditMessage replaces channelID/messageID's body with content.
	EditMessage(ctx context.Context, channelID, messageID int64, content string) error

	// DeleteMessage deletes channelID/messageID outright, used when the bound page itself is deleted.
	DeleteMessage(ctx context.Context, channelID, messageID int64) error
}

// Repository is the data-access contract for bindings.
type Repository interface {
	// Bind records that channelID/messageID mirrors pageID, replacing any prior binding for that message.
	Bind(ctx context.Context, channelID, messageID, pageID int64) error

	// Unbind removes messageID's binding. Returns ErrNotBound if none existed.
	Unbind(ctx context.Context, messageID int64) error

	// GetBoundPage returns the binding for messageID, if any.
	GetBoundPage(ctx context.Context, messageID int64) (*Binding, error)

	// BoundMessages returns every message bound to pageID.
	BoundMessages(ctx context.Context, pageID int64) ([]Binding, error)

	// GuildBindings returns every binding in guildID, ordered by the bound page's title.
	GuildBindings(ctx context.Context, guildID int64) ([]Binding, error)

	// UnbindAll removes every binding to pageID, used when an operator wants to stop mirroring a page without
	// waiting for its eventual deletion (which would cascade the bindings away anyway).
	UnbindAll(ctx context.Context, pageID int64) error

	// RevisionContent returns the rendered content and page ID of the revision named by revisionID.
	RevisionContent(ctx context.Context, revisionID int64) (pageID int64, content string, err error)
}
