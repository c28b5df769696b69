// Package watch implements per-page subscriptions and their edit/delete notification fan-out.
package watch

import (
	"context"
	"errors"
	"time"
)

// ErrNotWatching is returned when unwatch names a page the user has no subscription to.
var ErrNotWatching = errors.New("not watching that page")

// Subscriptions have no Go type of their own: a watch_subscriptions row is a (page_id, user_id) pair with no further
// metadata, handled as plain IDs.

// NotificationKind distinguishes an edit notification from a delete notification.
type NotificationKind int

const (
	// NotificationEdit is sent when a watched page receives a new revision.
	NotificationEdit NotificationKind = iota
	// NotificationDelete is sent when a watched page is deleted.
	NotificationDelete
)

// Notification is delivered to one subscriber of a watched page.
type Notification struct {
	Kind       NotificationKind
	GuildID    int64
	PageID     int64
	Title      string
	RevisionID int64
	EditorID   int64
	Diff       string // unified diff of old vs. new content; empty for NotificationDelete
}

// Notifier delivers a notification to a user, satisfied by the external chat gateway this module mirrors into.
type Notifier interface {
	Notify(ctx context.Context, userID int64, notification Notification) error
}

// Repository is the data-access contract for watch subscriptions.
type Repository interface {
	// Watch subscribes userID to pageID. Idempotent: watching an already-watched page is a no-op.
	Watch(ctx context.Context, pageID, userID int64) error

	// Unwatch removes userID's subscription to pageID. Returns ErrNotWatching if no subscription existed.
	Unwatch(ctx context.Context, pageID, userID int64) error

	// WatchList returns every page in guildID that userID watches, ordered by title.
	WatchList(ctx context.Context, guildID, userID int64) ([]TitledPage, error)

	// Subscribers returns every user ID watching pageID.
	Subscribers(ctx context.Context, pageID int64) ([]int64, error)

	// RevisionDiff returns the revision named by revisionID together with its immediately preceding revision's
	// content (nil if revisionID is a page's first revision), for building a unified diff.
	RevisionDiff(ctx context.Context, revisionID int64) (*RevisionPair, error)
}

// TitledPage pairs a page's identity with its title.
type TitledPage struct {
	PageID int64
	Title  string
}

// RevisionPair is a revision and, if one exists, the revision immediately before it on the same page.
type RevisionPair struct {
	GuildID      int64
	PageID       int64
	Title        string
	AuthorID     int64
	Revised      time.Time
	Body         string
	PreviousBody *string
}
