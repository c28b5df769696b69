package eventbus

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestTranslate_PageEdit(t *testing.T) {
	t.Parallel()
	l := NewListener(nil, NewDispatcher(zerolog.Nop()), zerolog.Nop())

	event, err := l.translate(&pgconn.Notification{Channel: channelPageEdit, Payload: "123"})
	if err != nil {
		t.Fatalf("translate() error = %v", err)
	}
	edit, ok := event.(PageEdited)
	if !ok || edit.RevisionID != 123 {
		t.Errorf("translate() = %#v, want PageEdited{RevisionID: 123}", event)
	}
}

func TestTranslate_PageDelete(t *testing.T) {
	t.Parallel()
	l := NewListener(nil, NewDispatcher(zerolog.Nop()), zerolog.Nop())

	event, err := l.translate(&pgconn.Notification{Channel: channelPageDelete, Payload: "1,2,Home"})
	if err != nil {
		t.Fatalf("translate() error = %v", err)
	}
	deleted, ok := event.(PageDeleted)
	if !ok || deleted.GuildID != 1 || deleted.PageID != 2 || deleted.Title != "Home" {
		t.Errorf("translate() = %#v, want PageDeleted{GuildID:1, PageID:2, Title:\"Home\"}", event)
	}
}

func TestTranslate_UnknownChannel(t *testing.T) {
	t.Parallel()
	l := NewListener(nil, NewDispatcher(zerolog.Nop()), zerolog.Nop())

	if _, err := l.translate(&pgconn.Notification{Channel: "unrelated", Payload: "x"}); err == nil {
		t.Error("translate() expected error for unknown channel, got nil")
	}
}

func TestTranslate_MalformedPageEditPayload(t *testing.T) {
	t.Parallel()
	l := NewListener(nil, NewDispatcher(zerolog.Nop()), zerolog.Nop())

	if _, err := l.translate(&pgconn.Notification{Channel: channelPageEdit, Payload: "not-a-number"}); err == nil {
		t.Error("translate() expected error for malformed page_edit payload, got nil")
	}
}
