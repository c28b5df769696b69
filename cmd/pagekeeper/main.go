// Command pagekeeper runs the wiki core as a standalone process: it owns the Postgres pool, the permission cache,
// the event bus listener, and a minimal operational HTTP surface. The chat gateway, command parser, and
// configuration UI that drive the wiki in production are external collaborators and are not part of this binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagekeeper/pagekeeper/internal/binding"
	"github.com/pagekeeper/pagekeeper/internal/config"
	"github.com/pagekeeper/pagekeeper/internal/eventbus"
	"github.com/pagekeeper/pagekeeper/internal/guild"
	"github.com/pagekeeper/pagekeeper/internal/httputil"
	"github.com/pagekeeper/pagekeeper/internal/permission"
	"github.com/pagekeeper/pagekeeper/internal/postgres"
	"github.com/pagekeeper/pagekeeper/internal/queries"
	"github.com/pagekeeper/pagekeeper/internal/querycat"
	"github.com/pagekeeper/pagekeeper/internal/valkey"
	"github.com/pagekeeper/pagekeeper/internal/watch"
	"github.com/pagekeeper/pagekeeper/internal/wiki"
)

// Build metadata, injected via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("pagekeeper exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("commit", commit).Str("date", date).Str("env", cfg.Env).
		Msg("starting pagekeeper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	cat, err := querycat.Load(queries.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("load query catalog: %w", err)
	}

	guildRepo := guild.NewPGRepository(db, cat, log.Logger)
	privilege := guild.NewChecker(guildRepo, guild.OwnerPolicy{})

	permStore := permission.NewPGStore(db, cat)
	permCache, err := permission.NewTieredCache(rdb)
	if err != nil {
		return fmt.Errorf("create permission cache: %w", err)
	}
	permResolver := permission.NewResolver(permStore, permStore, privilege, permCache, log.Logger)

	// wiki.Service itself (permission-gated page operations) is a library surface consumed directly by the chat
	// platform's command-handler process, an external collaborator this binary does not implement. This process
	// still needs the repository: it satisfies permission.PageLookup and watch.PageLookup.
	wikiRepo := wiki.NewPGRepository(db, cat, log.Logger)
	permResolver.SetPageLookup(wikiRepo)

	watchRepo := watch.NewPGRepository(db, cat, log.Logger)
	watchService := watch.NewService(watchRepo, wikiRepo, permResolver, noopNotifier{log: log.Logger}, log.Logger)

	bindingRepo := binding.NewPGRepository(db, cat, log.Logger)
	bindingService := binding.NewService(bindingRepo, wikiRepo, permResolver, noopMessenger{log: log.Logger}, log.Logger)

	dispatcher := eventbus.NewDispatcher(log.Logger)
	dispatcher.Subscribe(watchService)
	dispatcher.Subscribe(bindingService)

	listener := eventbus.NewListener(func(ctx context.Context) (*pgx.Conn, error) {
		return postgres.NewListenerConn(ctx, cfg.DatabaseURL)
	}, dispatcher, log.Logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("event bus listener stopped")
		}
	}()

	invalSub := permission.NewSubscriber(permCache, rdb)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := invalSub.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("cache invalidation subscriber stopped")
		}
	}()

	app := fiber.New(fiber.Config{AppName: "pagekeeper"})
	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Get("/healthz", httputil.Healthz(pingChecker(db)))
	app.Get("/readyz", httputil.Readyz(pingChecker(db), listener.Healthy))

	addr := fmt.Sprintf(":%d", cfg.Port)
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		serveErr <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	wg.Wait()
	return nil
}

func pingChecker(db *pgxpool.Pool) httputil.Checker {
	return func(ctx context.Context) error {
		return db.Ping(ctx)
	}
}

// noopNotifier logs watch notifications instead of delivering them. The real delivery path is the chat gateway,
// an external collaborator this binary does not implement.
type noopNotifier struct{ log zerolog.Logger }

func (n noopNotifier) Notify(ctx context.Context, userID int64, notification watch.Notification) error {
	n.log.Debug().Int64("user_id", userID).Str("title", notification.Title).Msg("watch notification (no gateway wired)")
	return nil
}

// noopMessenger logs binding mirror operations instead of performing them. The real chat message edits/deletes are
// owned by the chat gateway, an external collaborator this binary does not implement.
type noopMessenger struct{ log zerolog.Logger }

func (m noopMessenger) EditMessage(ctx context.Context, channelID, messageID int64, content string) error {
	m.log.Debug().Int64("channel_id", channelID).Int64("message_id", messageID).Msg("binding edit (no gateway wired)")
	return nil
}

func (m noopMessenger) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	m.log.Debug().Int64("channel_id", channelID).Int64("message_id", messageID).Msg("binding delete (no gateway wired)")
	return nil
}
