package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/shiftd/internal/api"
	"github.com/sandeepkv93/shiftd/internal/assist"
	"github.com/sandeepkv93/shiftd/internal/config"
	"github.com/sandeepkv93/shiftd/internal/delivery"
	"github.com/sandeepkv93/shiftd/internal/dispatch"
	"github.com/sandeepkv93/shiftd/internal/expand"
	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/logging"
	"github.com/sandeepkv93/shiftd/internal/reconcile"
	"github.com/sandeepkv93/shiftd/internal/scheduler"
	"github.com/sandeepkv93/shiftd/internal/service"
	"github.com/sandeepkv93/shiftd/internal/storage"
	"github.com/sandeepkv93/shiftd/internal/update"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", os.Getenv("SHIFTD_CONFIG"), "path to a YAML config file")
	headless := flag.Bool("headless", false, "run without the terminal UI")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shiftd: load config: %v\n", err)
		return 1
	}

	logger, logCloser, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shiftd: open log: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := storage.OpenSQLite(cfg.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		logger.Error("failed to open database", slog.String("path", cfg.DatabasePath), slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "shiftd: open database: %v\n", err)
		return 1
	}
	defer repo.Close()

	loc := service.LocalZone()
	engine := scheduler.NewEngine(cfg.SchedulerBuffer)
	engine.Start()
	defer engine.Stop()

	reconciler := reconcile.New(repo, expand.NewEngine(repo, logger), reconcile.Options{
		Location: loc,
		Logger:   logger,
	})
	dispatcher := dispatch.NewService(engine, repo, time.Now, logger)

	var notifier delivery.Notifier = delivery.NoopNotifier{}
	if cfg.DesktopNotifications {
		notifier = delivery.ExecNotifier{}
	}
	handler := delivery.NewHandler(repo, delivery.Options{
		Notifier:                notifier,
		Ringer:                  &delivery.BellRinger{W: os.Stderr},
		Launcher:                delivery.ExecLauncher{},
		Logger:                  logger,
		RingInterval:            cfg.AlarmRingInterval,
		CompleteSilentOnDismiss: cfg.CompleteSilentOnDismiss,
	})

	var syncer *holiday.Syncer
	if cfg.HolidayBaseURL != "" {
		syncer = holiday.NewSyncer(holiday.NewClient(cfg.HolidayBaseURL, logger), repo, time.Now, logger)
	}

	var assistant *assist.Assistant
	if cfg.AssistEnabled() {
		assistant, err = newAssistant(ctx, cfg, loc, logger)
		if err != nil {
			logger.Warn("mail assistant disabled", slog.String("error", err.Error()))
		}
	}

	svc, err := service.New(service.Deps{
		Repo:       repo,
		Reconciler: reconciler,
		Dispatcher: dispatcher,
		Delivery:   handler,
		Holidays:   syncer,
		Assistant:  assistant,
	}, service.Options{
		Location:           loc,
		Zone:               service.LocalZone,
		Logger:             logger,
		DaysAhead:          cfg.DaysAhead,
		RefreshInterval:    cfg.RefreshInterval,
		ClockCheckInterval: cfg.ClockCheckInterval,
		ClockSkewTolerance: cfg.ClockSkewTolerance,
		HolidaySyncOnStart: cfg.HolidaySyncOnStart,
	})
	if err != nil {
		logger.Error("failed to build service", slog.String("error", err.Error()))
		return 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return svc.Start(gctx) })
	g.Go(func() error {
		handler.Run(gctx, engine.C())
		return nil
	})
	if cfg.APIAddr != "" {
		g.Go(func() error { return api.Serve(gctx, cfg.APIAddr, api.NewRouter(svc, logger), logger) })
	}

	logger.Info("shiftd started",
		slog.String("database", cfg.DatabasePath),
		slog.Int("days_ahead", cfg.DaysAhead),
		slog.Bool("headless", *headless),
	)

	if *headless {
		g.Go(func() error {
			logEvents(gctx, handler.Events(), logger)
			return nil
		})
	} else {
		program := tea.NewProgram(update.NewModel(update.Options{
			Context: gctx,
			Backend: svc,
			Events:  handler.Events(),
			LogPath: cfg.LogFile,
		}), tea.WithAltScreen(), tea.WithContext(gctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("terminal ui failed", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "shiftd failed: %v\n", err)
		}
		cancel()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shiftd stopped with error", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("shiftd stopped")
	return 0
}

func newAssistant(ctx context.Context, cfg config.Config, loc *time.Location, logger *slog.Logger) (*assist.Assistant, error) {
	gen, err := assist.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	mail, err := assist.NewGmailSource(ctx, cfg.GmailCredentialsFile, cfg.GmailSubject)
	if err != nil {
		gen.Close()
		return nil, fmt.Errorf("gmail source: %w", err)
	}
	return assist.NewAssistant(mail, gen, loc, time.Now, logger), nil
}

func logEvents(ctx context.Context, events <-chan delivery.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			logger.InfoContext(ctx, "delivery event",
				slog.String("kind", string(ev.Kind)),
				slog.Int64("task_id", ev.TaskID),
				slog.String("title", ev.Title),
			)
		}
	}
}
