package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reminder-bot/internal/application"
	"reminder-bot/internal/config"
	"reminder-bot/internal/domain"
	"reminder-bot/internal/domain/ports/adapter"
	"reminder-bot/internal/domain/ports/repository"
	"reminder-bot/internal/infra/adapters/content"
	tele "reminder-bot/internal/infra/adapters/telegram"
	pg "reminder-bot/internal/infra/db/postgres"
	"reminder-bot/internal/infra/db/sqlite"
	httpapi "reminder-bot/internal/infra/http"
	"reminder-bot/internal/infra/i18n"
	"reminder-bot/internal/infra/logging"
	"reminder-bot/internal/infra/metrics"
	red "reminder-bot/internal/infra/redis"
	"reminder-bot/internal/infra/scheduler"
	"reminder-bot/internal/infra/worker"
	"reminder-bot/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

// devUserID is the local user id the noop adapter attributes stdin lines to.
const devUserID = 1

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, noop bot reads commands from stdin")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped with error")
	}
	logger.Info().Msg("bot stopped")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("store", cfg.Store.Driver).Str("mode", cfg.Bot.Mode).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Redis (optional) ----
	var (
		limiter application.RateLimiter
		locker  *red.RedisLocker
		lockTok string
	)
	if cfg.Redis.URL != "" {
		redisCli, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisCli.Close()
		limiter = red.NewRateLimiter(redisCli, cfg.Redis.RateLimit, cfg.Redis.RateWindow)
		locker = red.NewLocker(redisCli)
		lockTok, err = locker.TryLock(ctx, red.InstanceLockKey, cfg.Redis.InstanceLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return errors.New("another instance holds the polling lock")
			}
			return fmt.Errorf("instance lock: %w", err)
		}
		logger.Info().Msg("redis enabled: rate limiting and instance lock")
	}

	// ---- Settings store ----
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// ---- Texts ----
	tr, err := i18n.Load(cfg.Reminder.Language)
	if err != nil {
		return err
	}

	// ---- Telegram ----
	channel, source, err := openBot(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Delivery & scheduler ----
	provider := content.NewDefaultProvider(cfg.Reminder.ContentTimeout/2, logger)
	delivery := usecase.NewDeliveryUseCase(channel, provider, cfg.Reminder.ContentTimeout, cfg.Reminder.SendTimeout, logger)
	sched := scheduler.NewScheduler(store, delivery,
		scheduler.WithLocation(cfg.ServerLocation()),
		scheduler.WithLogger(logger),
		scheduler.WithNotice(application.ReminderNotice(tr)),
	)
	pool := worker.NewPool(cfg.Reminder.OneOffWorkers, logger)
	pool.Start(context.Background())
	defer func() {
		sched.ShutdownAll()
		pool.Stop()
	}()

	dispatcher := application.NewDispatcher(store, sched, channel, tr, delivery, pool, limiter,
		application.DispatcherConfig{
			Location:      cfg.ServerLocation(),
			UserOffset:    cfg.Reminder.UserOffset,
			DefaultActive: cfg.Reminder.DefaultActive,
			SendTimeout:   cfg.Reminder.SendTimeout,
		}, logger)

	// timers come back before any command is read
	restored, err := sched.RestoreFromStore(ctx)
	if err != nil {
		logger.Error().Err(err).Int("restored", restored).Msg("some reminders were not restored")
	} else {
		logger.Info().Int("restored", restored).Msg("reminders restored")
	}

	// ---- Run ----
	srv := httpapi.NewServer(cfg.HTTP.Port, cfg.Bot.Name, sched, logger)
	ingest := application.NewIngestionLoop(source, dispatcher, cfg.Bot.Workers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return ingest.Run(gctx) })
	if locker != nil {
		g.Go(func() error {
			return red.HoldLock(gctx, locker, red.InstanceLockKey, lockTok, cfg.Redis.InstanceLockTTL)
		})
	}

	logger.Info().Msg("bot is running")
	err = g.Wait()
	logger.Info().Msg("shutting down")
	// deferred: timers, then one-off pool, then store and redis
	return err
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.SettingsRepository, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info().Msg("settings store: postgres")
		return pg.NewPostgresSettingsRepo(pool), nil
	default:
		repo, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.Store.SQLitePath).Msg("settings store: sqlite")
		return repo, nil
	}
}

func openBot(cfg *config.Config, logger *zerolog.Logger) (adapter.NotificationChannel, adapter.UpdateSource, error) {
	if cfg.Bot.Mode == "noop" {
		var in io.Reader
		if cfg.Runtime.Dev {
			in = os.Stdin
		}
		b := tele.NewNoopBotAdapter(in, devUserID, logger)
		return b, b, nil
	}
	b, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("username", b.Username()).Msg("telegram bot authorized")
	return b, b, nil
}
