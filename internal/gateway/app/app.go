package app

import (
	"context"
	"fmt"
	"log"

	"atelier/internal/gateway/config"
	"atelier/internal/gateway/handler"
	"atelier/internal/gateway/server"
	"atelier/internal/provider"
	"atelier/internal/provider/fake"
	"atelier/internal/provider/gemini"
	"atelier/internal/runway"
	"atelier/internal/studio"
	"atelier/internal/techpack"
)

type App struct {
	server   *server.Server
	studio   *studio.Studio
	provider provider.Provider
}

// New wires the provider, the studio session and the HTTP server.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	p, err := NewProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s, err := NewStudio(p, cfg, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	mux := server.NewMux(handler.New(s, logger))
	return &App{
		server:   server.New(cfg.Addr, mux, logger),
		studio:   s,
		provider: p,
	}, nil
}

// NewProvider builds the capability provider for cfg: the scripted fake when
// offline, the Unconfigured stand-in without credentials, otherwise Gemini
// behind the standard middleware stack.
func NewProvider(ctx context.Context, cfg *config.Config, logger *log.Logger) (provider.Provider, error) {
	switch {
	case cfg.Offline:
		logger.Printf("app: offline mode, using the scripted provider")
		return fake.New(), nil
	case cfg.APIKey == "":
		logger.Printf("app: no GEMINI_API_KEY set, running with placeholder output")
		return provider.Unconfigured{}, nil
	}
	g, err := gemini.New(ctx, cfg.APIKey, gemini.Models{
		Chat:      cfg.Models.Chat,
		Reasoning: cfg.Models.Reasoning,
		Image:     cfg.Models.Image,
		Edit:      cfg.Models.Edit,
		Video:     cfg.Models.Video,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini provider: %w", err)
	}
	return provider.Standard(g, provider.StackOptions{
		Logger:         logger,
		RetryAttempts:  cfg.Provider.RetryAttempts,
		RetryBaseDelay: cfg.Provider.RetryBaseDelay,
		RPS:            cfg.Provider.RPS,
		Burst:          cfg.Provider.Burst,
		Breaker: provider.BreakerSettings{
			ConsecutiveFailures: cfg.Provider.BreakerFailures,
			OpenTimeout:         cfg.Provider.BreakerTimeout,
		},
	}), nil
}

func NewStudio(p provider.Provider, cfg *config.Config, logger *log.Logger) (*studio.Studio, error) {
	catalog := runway.DefaultCatalog()
	if cfg.Runway.Catalog != "" {
		c, err := runway.LoadCatalog(cfg.Runway.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load scenario catalog: %w", err)
		}
		catalog = c
	}
	return studio.New(p, studio.Options{
		Logger:           logger,
		Welcome:          cfg.Session.Welcome,
		HistoryWindow:    cfg.Session.HistoryWindow,
		ManualDisclosure: cfg.Session.ManualDisclosure,
		TechPack: techpack.Options{
			Logger:    logger,
			CacheSize: cfg.Search.CacheSize,
			CacheTTL:  cfg.Search.CacheTTL,
		},
		Runway: runway.Options{
			Logger:       logger,
			PollInterval: cfg.Runway.PollInterval,
			MaxWait:      cfg.Runway.MaxWait,
			Video: provider.VideoConfig{
				AspectRatio: cfg.Runway.AspectRatio,
				Resolution:  cfg.Runway.Resolution,
			},
			Catalog: catalog,
		},
	}), nil
}

func (a *App) Studio() *studio.Studio { return a.studio }

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops accepting requests, then cancels and drains background
// work before closing the provider.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	_ = a.studio.Close()
	if cerr := a.provider.Close(); err == nil {
		err = cerr
	}
	return err
}
