// Package eventbus turns Postgres NOTIFY payloads on the page_edit and page_delete channels into typed events and
// fans them out to independent consumers.
package eventbus

import (
	"fmt"
	"strconv"
	"strings"
)

// Event is a notification translated from a Postgres NOTIFY payload.
type Event interface {
	isEvent()
}

// PageEdited is emitted when a new revision is inserted (page_edit channel). RevisionID is the only payload the
// storage trigger carries; consumers load whatever else they need from the database.
type PageEdited struct {
	RevisionID int64
}

func (PageEdited) isEvent() {}

// PageDeleted is emitted when a page is deleted (page_delete channel). Parsed from a "guild_id,page_id,title"
// payload; Title may itself contain commas, so parsing splits on the first two commas only and keeps the remainder.
type PageDeleted struct {
	GuildID int64
	PageID  int64
	Title   string
}

func (PageDeleted) isEvent() {}

// parsePageDeleted parses the page_delete channel's "guild_id,page_id,title" payload. Only the first two commas are
// treated as field separators; any further commas are part of the title.
func parsePageDeleted(payload string) (PageDeleted, error) {
	first := strings.IndexByte(payload, ',')
	if first < 0 {
		return PageDeleted{}, errMalformedPayload(payload)
	}
	second := strings.IndexByte(payload[first+1:], ',')
	if second < 0 {
		return PageDeleted{}, errMalformedPayload(payload)
	}
	second += first + 1

	guildID, err := parseInt64(payload[:first])
	if err != nil {
		return PageDeleted{}, errMalformedPayload(payload)
	}
	pageID, err := parseInt64(payload[first+1 : second])
	if err != nil {
		return PageDeleted{}, errMalformedPayload(payload)
	}

	return PageDeleted{GuildID: guildID, PageID: pageID, Title: payload[second+1:]}, nil
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func errMalformedPayload(payload string) error {
	return fmt.Errorf("malformed page_delete payload: %q", payload)
}
