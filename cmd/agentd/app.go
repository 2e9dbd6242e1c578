package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/agent"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/chart"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/config"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/eventbus"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pipeline"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pool"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/publisher"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// app wires every component from one parsed config. Commands build it,
// use what they need, and Close it.
type app struct {
	cfgman *config.Manager
	cfg    *config.Config

	logSvc *logx.Service
	log    logx.Logger

	store   store.Store
	bus     eventbus.Bus
	engine  *agent.Engine
	service *agent.Service
}

func buildApp() (*app, error) {
	cfgman := config.NewManager(cfgPath)
	cfg, err := cfgman.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgman.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: config.DurationOr(cfg.Storage.BusyTimeout, 5*time.Second),
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	limiter := gateway.NewLimiter(cfg.Gateway.RatePerSec)
	llm := gateway.NewClient(cfg.Gateway, limiter, log.With(logx.String("comp", "gateway")))

	renderer := chart.NewRenderer(filepath.Join(filepath.Dir(cfg.Storage.Path), "charts"))

	publishers := map[string]publisher.Publisher{
		"twitter":  publisher.NewTwitter(log.With(logx.String("comp", "twitter"))),
		"linkedin": publisher.NewLinkedIn(log.With(logx.String("comp", "linkedin"))),
		"telegram": publisher.NewTelegram(log.With(logx.String("comp", "telegram"))),
	}

	exec := pipeline.NewExecutor(
		st,
		llm,
		buildSources(cfg, log),
		renderer,
		publishers,
		pipeline.Options{
			Pool: pool.Options{
				MinScore:      cfg.Pool.MinScore,
				MaxCandidates: cfg.Pool.MaxCandidates,
			},
			DedupWindow: config.DurationOr(cfg.Pool.DedupWindow, 0),
			Bounds: gateway.Bounds{
				MinChars: cfg.Content.MinChars,
				MaxChars: cfg.Content.MaxChars,
			},
			DefaultStyle: cfg.Content.Style,
			Retry:        gateway.PolicyFromConfig(cfg.Gateway.Retry),
			Defaults:     cfg.DefaultCredentials,
		},
		log.With(logx.String("comp", "pipeline")),
	)

	bus := eventbus.New()
	engine := agent.NewEngine(agent.EngineConfig{
		Workers:     cfg.Engine.Workers,
		QueueSize:   cfg.Engine.QueueSize,
		RunTimeout:  config.DurationOr(cfg.Engine.RunTimeout, 0),
		HistorySize: cfg.Engine.HistorySize,
	}, exec, bus, log.With(logx.String("comp", "engine")))

	service := agent.NewService(st, engine, log.With(logx.String("comp", "scheduler")))

	return &app{
		cfgman:  cfgman,
		cfg:     cfg,
		logSvc:  logSvc,
		log:     log,
		store:   st,
		bus:     bus,
		engine:  engine,
		service: service,
	}, nil
}

func buildSources(cfg *config.Config, log logx.Logger) []source.Source {
	var srcs []source.Source
	if cfg.Sources.HackerNews.Enabled {
		srcs = append(srcs, source.NewHackerNews(
			cfg.Sources.HackerNews.MaxStories,
			cfg.Sources.HackerNews.MinScore,
			log.With(logx.String("comp", "source.hn")),
		))
	}
	for _, f := range cfg.Sources.Feeds {
		srcs = append(srcs, source.NewFeed(f.Name, f.URL, log.With(logx.String("comp", "source.feed"))))
	}
	return srcs
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}
