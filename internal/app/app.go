// Package app assembles the engine: config, logging, storage, executors,
// runner, and the Telegram surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"schedbot/internal/bot"
	"schedbot/internal/config"
	"schedbot/internal/executor"
	"schedbot/internal/payment"
	"schedbot/internal/runner"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/wizard"
	"schedbot/pkg/logx"
)

type App struct {
	cfgMgr    *config.Manager
	log       logx.Logger
	db        *storage.DB
	gemini    *executor.Gemini
	bot       *bot.Bot
	registrar *runner.Registrar
	coord     *runner.Coordinator
	engine    *wizard.Engine

	bootstrap   func(ctx context.Context) error
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New builds the whole object graph from a config file path. Nothing starts
// running until Start.
func New(path string) (*App, error) {
	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))

	a := &App{cfgMgr: mgr, log: log}
	if err := a.build(cfg); err != nil {
		_ = log.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	busyTimeout, err := config.ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	db, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.db = db

	schedules := schedule.NewStore(db)
	sessions := schedule.NewWizardStore(db)
	creds := payment.NewCredentialsStore(db)

	apiKey := cfg.AI.APIKey
	if env := os.Getenv("GEMINI_API_KEY"); env != "" {
		apiKey = env
	}
	gemini, err := executor.NewGemini(context.Background(), executor.GeminiConfig{
		APIKey:          apiKey,
		Model:           cfg.AI.Model,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
		Temperature:     cfg.AI.Temperature,
		HistoryLimit:    cfg.AI.HistoryLimit,
	}, a.log.With(logx.String("component", "ai")))
	if err != nil {
		return fmt.Errorf("init ai generator: %w", err)
	}
	a.gemini = gemini

	payTimeout, err := config.ParseDuration("payments.timeout", cfg.Payments.Timeout, 30*time.Second)
	if err != nil {
		return err
	}
	payClient := payment.NewClient(payment.Config{
		BaseURL: cfg.Payments.BaseURL,
		Timeout: payTimeout,
	}, a.log.With(logx.String("component", "payments")))

	registry := executor.NewRegistry(
		executor.NewPromptExecutor(gemini),
		executor.NewPaymentExecutor(payClient, creds),
	)

	sink := bot.NewSink(float64(cfg.Notifier.RatePerSec), a.log.With(logx.String("component", "sink")))

	lease, err := config.ParseDuration("engine.lease_window", cfg.Engine.LeaseWindow, runner.DefaultLeaseWindow)
	if err != nil {
		return err
	}
	a.coord = runner.NewCoordinator(schedules, registry, sink, a.log.With(logx.String("component", "runner"))).
		WithLeaseWindow(lease).
		WithBiller(payment.NewUsageBiller(payClient, creds, cfg.AI.Model, a.log.With(logx.String("component", "billing"))))
	a.registrar = runner.NewRegistrar(a.coord, a.log.With(logx.String("component", "cron")))

	a.engine = wizard.NewEngine(sessions, schedules, a.registrar, wizard.Caps{
		Prompt:  cfg.Engine.PromptCap,
		Payment: cfg.Engine.PaymentCap,
	}, a.log.With(logx.String("component", "wizard")))

	pollTimeout, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	token := cfg.Telegram.Token
	if env := os.Getenv("BOT_TOKEN"); env != "" {
		token = env
	}
	tgBot, err := bot.New(bot.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, a.engine, schedules, a.registrar, sink, a.log.With(logx.String("component", "bot")))
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	a.bot = tgBot

	a.bootstrap = runner.NewRecovery(schedules, a.registrar,
		a.log.With(logx.String("component", "recovery"))).Bootstrap
	return nil
}

// Start re-arms persisted schedules, starts the cron loop, Telegram polling,
// and the config watcher.
func (a *App) Start(ctx context.Context) error {
	if err := a.bootstrap(ctx); err != nil {
		return fmt.Errorf("recovery bootstrap: %w", err)
	}
	a.registrar.Start()
	a.bot.Start(ctx)

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	updates := a.cfgMgr.Subscribe(1)
	go func() {
		defer close(a.watchDone)
		if err := a.cfgMgr.Watch(wctx); err != nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()
	go a.applyReloads(wctx, updates)

	a.log.Info("engine started")
	return nil
}

// applyReloads hot-applies the config fields that are safe to change at
// runtime: caps and the lease window. Token, storage path, and the AI client
// need a restart.
func (a *App) applyReloads(ctx context.Context, updates <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.engine.SetCaps(wizard.Caps{
				Prompt:  cfg.Engine.PromptCap,
				Payment: cfg.Engine.PaymentCap,
			})
			lease, err := config.ParseDuration("engine.lease_window", cfg.Engine.LeaseWindow, runner.DefaultLeaseWindow)
			if err != nil {
				a.log.Warn("reload: bad lease window", logx.Err(err))
				continue
			}
			a.coord.WithLeaseWindow(lease)
		}
	}
}

// Stop shuts down in reverse order: no new updates, no new ticks, flush, and
// close storage.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	a.bot.Stop(ctx)
	a.registrar.Stop(ctx)

	var errs []error
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	a.log.Info("engine stopped")
	if err := a.log.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
