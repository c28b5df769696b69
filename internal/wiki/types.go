// Package wiki implements the page store: titles, append-only revisions, content interning, and aliases.
package wiki

import (
	"fmt"
	"time"
)

const (
	// MaxTitleLength is the longest a page or alias title may be.
	MaxTitleLength = 200

	// MaxContentLength is the longest a revision's content body may be. Derived from the original chat command's
	// 2000-character message limit minus the command prefix and a quoted title, rounded down to a multiple of 50.
	MaxContentLength = 1750
)

// Page is a titled, revision-tracked document within one guild.
type Page struct {
	PageID         int64
	GuildID        int64
	Title          string
	LatestRevision *int64
	CreatedAt      time.Time
}

// Revision is one immutable snapshot of a page's title and content, authored at a point in time.
type Revision struct {
	RevisionID int64
	PageID     int64
	AuthorID   int64
	Revised    time.Time
	ContentID  int64
	Title      string
	Body       string
}

// Alias is an alternate title that resolves to a page in one hop. Aliases never chain.
type Alias struct {
	AliasID      int64
	GuildID      int64
	Title        string
	TargetPageID int64
}

// Resolved is the result of resolving a title to either a page or an alias pointing at one.
type Resolved struct {
	PageID  int64
	Title   string
	IsAlias bool
}

// Editor pairs an author with the number of revisions they hold in some scope.
type Editor struct {
	AuthorID int64
	Edits    int64
}

// TitledPage pairs a page's identity with its title, for listing operations that don't need full content.
type TitledPage struct {
	PageID int64
	Title  string
}

// PageUseCount pairs a page title with how many times it was looked up in some window.
type PageUseCount struct {
	Title string
	Uses  int64
}

// ValidateTitle reports an error if title is too long to store. Run ahead of any transaction, matching the
// original's cheap-validation-before-serializable-transaction ordering.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong{Title: title, Limit: MaxTitleLength}
	}
	return nil
}

// ValidateContent reports an error if content is too long to store.
func ValidateContent(content string) error {
	if len(content) > MaxContentLength {
		return ErrContentTooLong{Limit: MaxContentLength}
	}
	return nil
}

// ErrTitleTooLong is returned when a title exceeds MaxTitleLength.
type ErrTitleTooLong struct {
	Title string
	Limit int
}

func (e ErrTitleTooLong) Error() string {
	return fmt.Sprintf("title is too long (%d characters, limit %d)", len(e.Title), e.Limit)
}

// ErrContentTooLong is returned when a revision body exceeds MaxContentLength.
type ErrContentTooLong struct {
	Limit int
}

func (e ErrContentTooLong) Error() string {
	return fmt.Sprintf("content is too long (limit %d characters)", e.Limit)
}

// ErrPageNotFound is returned when a title does not resolve to any page or alias in the guild.
type ErrPageNotFound struct {
	Title string
}

func (e ErrPageNotFound) Error() string {
	return fmt.Sprintf("page %q does not exist", e.Title)
}

// ErrPageExists is returned when a create, rename, or alias operation collides with an existing title.
type ErrPageExists struct {
	Title string
}

func (e ErrPageExists) Error() string {
	return fmt.Sprintf("page %q already exists", e.Title)
}

// ErrRevisionNotFound is returned when one or more requested revision IDs don't exist in the guild.
type ErrRevisionNotFound struct {
	RevisionIDs []int64
}

func (e ErrRevisionNotFound) Error() string {
	return fmt.Sprintf("one or more revision IDs not found: %v", e.RevisionIDs)
}
