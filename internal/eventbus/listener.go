package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	channelPageEdit   = "page_edit"
	channelPageDelete = "page_delete"

	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

var errNotConnected = errors.New("event bus listener has no live connection")

// Dialer opens a new, unpooled Postgres connection for LISTEN. Satisfied by pgx.Connect bound to a DSN; a separate
// interface exists only so tests can substitute a fake without dialing a real database.
type Dialer func(ctx context.Context) (*pgx.Conn, error)

// Listener owns one dedicated connection that LISTENs on the page_edit and page_delete channels for the life of the
// process, translating notifications into typed Events and handing them to a Dispatcher. The connection is never
// drawn from a pool: a pooled connection can be silently recycled out from under a LISTEN, which would drop
// notifications without any visible error (grounded on cautious_memory/__init__.py's dedicated, never-released
// pool-acquired listener connection).
type Listener struct {
	dial       Dialer
	dispatcher *Dispatcher
	log        zerolog.Logger
	connected  atomic.Bool
}

// NewListener creates a new event bus listener. dial must open a fresh, unpooled connection each time it is called.
func NewListener(dial Dialer, dispatcher *Dispatcher, logger zerolog.Logger) *Listener {
	return &Listener{dial: dial, dispatcher: dispatcher, log: logger}
}

// Healthy reports whether the listener currently holds a live LISTEN connection, for use as a readiness check.
func (l *Listener) Healthy(context.Context) error {
	if !l.connected.Load() {
		return errNotConnected
	}
	return nil
}

// Start runs the listen loop until ctx is cancelled. On a lost connection it reconnects with exponential backoff
// (capped at maxBackoff, reset after each successful connection) and resumes LISTENing; any notifications lost
// during the gap are simply never delivered, matching the tolerance for missed notifications required of every
// consumer.
func (l *Listener) Start(ctx context.Context) error {
	backoff := minBackoff
	for {
		connected, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = minBackoff
		}
		l.connected.Store(false)
		if err != nil {
			l.log.Warn().Err(err).Dur("backoff", backoff).Msg("event bus listener connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// listenOnce dials a fresh connection, issues both LISTEN statements, and loops on WaitForNotification until the
// connection fails or ctx is cancelled. The returned bool reports whether the connection was established, so Start
// can distinguish a dial failure (keep backing off) from a connection that ran for a while before dropping (reset
// backoff, since the database was reachable).
func (l *Listener) listenOnce(ctx context.Context) (bool, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+channelPageEdit); err != nil {
		return false, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channelPageDelete); err != nil {
		return false, err
	}
	l.log.Info().Msg("event bus listener connected")
	l.connected.Store(true)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return true, nil
			}
			return true, err
		}

		event, err := l.translate(notification)
		if err != nil {
			l.log.Warn().Err(err).Str("channel", notification.Channel).Msg("dropping malformed notification")
			continue
		}
		l.dispatcher.dispatch(ctx, event)
	}
}

func (l *Listener) translate(n *pgconn.Notification) (Event, error) {
	switch n.Channel {
	case channelPageEdit:
		revisionID, err := parseInt64(n.Payload)
		if err != nil {
			return nil, err
		}
		return PageEdited{RevisionID: revisionID}, nil
	case channelPageDelete:
		return parsePageDeleted(n.Payload)
	default:
		return nil, errMalformedPayload(n.Payload)
	}
}
