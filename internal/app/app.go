// Package app assembles the store, completion factory and discovery service
// from configuration for the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/epiphany/backend/internal/config"
	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/observability"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
	"github.com/zhouzirui/epiphany/backend/internal/store"
)

// App holds the wired services.
type App struct {
	Store     store.Store
	Discovery *discovery.Service

	shutdownTracer func(context.Context) error
}

// New opens the store and initializes the discovery service.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	shutdown, err := observability.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, version)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	st, err := store.Open(ctx, store.Settings{
		Driver:    cfg.Store.Driver,
		Path:      cfg.Store.Path,
		DSN:       cfg.Store.DSN,
		CacheSize: cfg.Store.CacheSize,
		CacheTTL:  cfg.Store.CacheTTL,
	}, store.WithProjection(model.DocType, model.Project))
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := discovery.New(st, ai.NewFactory(cfg.AI), Options(cfg))
	if err := svc.Init(ctx); err != nil {
		_ = st.Close()
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init discovery: %w", err)
	}
	log.Printf("[app] discovery ready: provider=%s store=%s personas=%d", cfg.AI.Provider, cfg.Store.Driver, len(svc.Personas()))

	return &App{Store: st, Discovery: svc, shutdownTracer: shutdown}, nil
}

// Options maps configuration onto discovery options.
func Options(cfg *config.Config) discovery.Options {
	return discovery.Options{
		Interview: interview.Options{
			Rounds:                 cfg.Discovery.InterviewRounds,
			SummaryTranscriptLimit: cfg.Discovery.SummaryTranscriptLimit,
			PersistAPIKey:          cfg.Discovery.PersistAPIKey,
		},
	}
}

// Close stops running interviews, then closes the store and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Discovery.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
