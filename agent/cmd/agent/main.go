package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	flag "github.com/spf13/pflag"

	"github.com/obsidianstack/sentinel/agent/internal/alerts"
	"github.com/obsidianstack/sentinel/agent/internal/api"
	"github.com/obsidianstack/sentinel/agent/internal/config"
	"github.com/obsidianstack/sentinel/agent/internal/incident"
	"github.com/obsidianstack/sentinel/agent/internal/logging"
	"github.com/obsidianstack/sentinel/agent/internal/schedule"
	"github.com/obsidianstack/sentinel/agent/internal/scraper"
	"github.com/obsidianstack/sentinel/agent/internal/store"
	"github.com/obsidianstack/sentinel/agent/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single evaluation pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "err", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Agent.Log)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closeLog() //nolint:errcheck
	slog.SetDefault(logger)

	slog.Info("sentinel-agent starting", "config", *configPath)

	rt, sched, err := cfg.Runtime()
	logSkipped(err)
	slog.Info("config loaded",
		"application", rt.Application,
		"sources", len(cfg.Agent.Sources),
		"checks", len(rt.Checks),
		"subscriptions", len(rt.Policy.Subscriptions),
		"schedule", sched.String(),
		"store", cfg.Alerting.Store.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := store.Open(ctx, storeOptions(cfg.Alerting.Store))
	if err != nil {
		slog.Error("failed to open incident store", "backend", cfg.Alerting.Store.Backend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	registry := alerts.NewRegistry(cfg.Alerters()...)
	slog.Info("alerters registered", "available", registry.Available())

	d := cfg.Alerting.Dispatch
	dispatcher := alerts.NewDispatcher(d.Workers, d.QueueSize, d.Timeout)
	defer dispatcher.Close()

	src, err := scraper.New(cfg.Agent.Sources, cfg.Agent.ScrapeTimeout)
	if err != nil {
		slog.Error("failed to build scraper", "err", err)
		os.Exit(1)
	}
	if len(cfg.Agent.Sources) == 0 {
		slog.Warn("no sources configured, checks will only see self-monitoring series")
	}

	scheduler := schedule.New(src, incident.New(st), alerts.NewRouter(registry, dispatcher), rt, sched)

	if *once {
		r := scheduler.Tick(ctx)
		slog.Info("single pass done", "evaluated", r.Evaluated, "notified", r.Notified, "took", r.Duration)
		return
	}

	hub := ws.New(st)
	go hub.Run(ctx)
	scheduler.OnTransition(hub.Broadcast)

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			reload(updated, scheduler, src, registry)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.API.Listen != "" {
		httpSrv = &http.Server{
			Addr: cfg.API.Listen,
			Handler: api.New(api.Options{
				Store:      st,
				Alerters:   registry,
				Runtime:    scheduler,
				Stream:     hub,
				OnChange:   hub.Broadcast,
				AuthMode:   cfg.API.Auth.Mode,
				AuthHeader: cfg.API.Auth.Header,
				AuthKey:    cfg.API.Auth.Key(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.API.Listen, "auth_mode", cfg.API.Auth.Mode)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
				cancel()
			}
		}()
	}

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler stopped", "err", err)
	}

	slog.Info("sentinel-agent shutting down")
	if httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	delivered, failed, dropped := dispatcher.Stats()
	slog.Info("alert deliveries", "delivered", delivered, "failed", failed, "dropped", dropped)
}

// reload applies a changed config file. Settings that need a restart
// (store, API listener, logging) are only logged when they differ.
func reload(cfg *config.Config, s *schedule.Scheduler, src *scraper.Scraper, reg *alerts.Registry) {
	rt, sched, err := cfg.Runtime()
	logSkipped(err)

	if err := src.SetSources(cfg.Agent.Sources, cfg.Agent.ScrapeTimeout); err != nil {
		slog.Error("config reload: keeping previous sources", "err", err)
	}
	for _, a := range cfg.Alerters() {
		reg.Replace(a)
	}
	s.Apply(rt)
	s.SetSchedule(sched)

	slog.Info("config hot-reloaded",
		"sources", len(cfg.Agent.Sources),
		"checks", len(rt.Checks),
		"subscriptions", len(rt.Policy.Subscriptions),
		"muted", rt.Policy.Muted,
		"schedule", sched.String(),
		"available_alerters", reg.Available(),
	)
}

func logSkipped(err error) {
	if err == nil {
		return
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			slog.Warn("config: skipped entry", "err", e)
		}
		return
	}
	slog.Warn("config: skipped entry", "err", err)
}

func storeOptions(sc config.StoreConfig) store.Options {
	return store.Options{
		Backend:       sc.Backend,
		DSN:           sc.DSN(),
		RedisAddr:     sc.RedisAddr,
		RedisPassword: sc.RedisPassword(),
		KeyPrefix:     sc.KeyPrefix,
	}
}
