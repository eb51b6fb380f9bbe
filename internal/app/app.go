// Package app wires all Cinescope subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves MCP over stdio alongside the admin HTTP listener,
// and Shutdown tears everything down in order.
//
// For testing, inject a fake TMDB backend via WithUpstream and an in-memory
// MCP transport via WithTransport. When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cinescope/internal/cache"
	"github.com/MrWong99/cinescope/internal/config"
	"github.com/MrWong99/cinescope/internal/dispatch"
	"github.com/MrWong99/cinescope/internal/health"
	"github.com/MrWong99/cinescope/internal/observe"
	"github.com/MrWong99/cinescope/internal/resilience"
	"github.com/MrWong99/cinescope/internal/tools"
	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// Version is the release version reported to MCP clients and in telemetry.
// Overridden at release time via -ldflags "-X ...internal/app.Version=v1.2.3".
var Version = "0.1.0"

// App owns all subsystem lifetimes for one Cinescope process.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics    *observe.Metrics
	store      *cache.Store
	upstream   tools.Upstream
	dispatcher *dispatch.Dispatcher
	mcpServer  *mcpsdk.Server
	admin      *http.Server
	transport  mcpsdk.Transport

	// closers are called in reverse-init order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithUpstream injects a TMDB backend instead of creating a real client
// from the config.
func WithUpstream(u tools.Upstream) Option {
	return func(a *App) { a.upstream = u }
}

// WithTransport injects the MCP transport Run serves on instead of stdio.
func WithTransport(t mcpsdk.Transport) Option {
	return func(a *App) { a.transport = t }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// A missing TMDB API key is not fatal: the admin surface still runs and
// every tool call fails with a clear error until a key is configured.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	if err := a.initTelemetry(ctx, reg); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Cache ─────────────────────────────────────────────────────────
	a.store = cache.NewStore(cache.WithTTL(cfg.Cache.TTL()))
	if err := a.metrics.RegisterCacheGauge(func() int64 { return int64(a.store.Len()) }); err != nil {
		return nil, fmt.Errorf("app: register cache gauge: %w", err)
	}

	// ── 3. Upstream ──────────────────────────────────────────────────────
	if err := a.initUpstream(); err != nil {
		return nil, fmt.Errorf("app: init upstream: %w", err)
	}

	// ── 4. Tools + dispatcher ────────────────────────────────────────────
	retrier := resilience.New(resilience.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialBackoff(),
		OnTransition: func(_, to resilience.State, attempt int) {
			a.metrics.RecordUpstreamAttempt(context.Background(), to.String(), attempt)
		},
	})
	set := tools.New(a.upstream, a.store, retrier, tools.WithDefaultLanguage(cfg.TMDB.Language))
	a.dispatcher = dispatch.New(set, a.metrics)
	a.mcpServer = dispatch.NewServer(a.dispatcher, Version)

	// ── 5. Admin listener ────────────────────────────────────────────────
	a.initAdmin(reg)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry sets up the OTel SDK and the metric instruments.
func (a *App) initTelemetry(ctx context.Context, reg prometheus.Registerer) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cinescope",
		ServiceVersion: Version,
		Registerer:     reg,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initUpstream creates the real TMDB client unless a backend was injected.
func (a *App) initUpstream() error {
	if a.upstream != nil {
		return nil // injected
	}
	if a.cfg.TMDB.APIKey == "" {
		slog.Warn("starting without a TMDB API key; tool calls will fail until one is configured")
		a.upstream = unconfiguredUpstream{}
		return nil
	}

	opts := []tmdb.Option{
		tmdb.WithHTTPClient(&http.Client{Timeout: a.cfg.TMDB.Timeout()}),
	}
	if a.cfg.TMDB.BaseURL != "" {
		opts = append(opts, tmdb.WithBaseURL(a.cfg.TMDB.BaseURL))
	}
	client, err := tmdb.New(a.cfg.TMDB.APIKey, opts...)
	if err != nil {
		return err
	}
	a.upstream = client
	return nil
}

// initAdmin builds the admin HTTP server serving /healthz, /readyz and
// /metrics. MCP traffic never crosses this listener; it exists for operators.
func (a *App) initAdmin(reg *prometheus.Registry) {
	checkers := []health.Checker{
		{Name: "tmdb-config", Check: func(context.Context) error {
			if a.cfg.TMDB.APIKey == "" {
				return errors.New("TMDB API key is not configured")
			}
			return nil
		}},
		{Name: "cache", Check: func(context.Context) error {
			if a.store == nil {
				return errors.New("cache store is not initialised")
			}
			return nil
		}},
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	a.admin = &http.Server{
		Addr:              a.cfg.Server.AdminAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled: the MCP server on its transport and the
// admin listener side by side. It returns the first hard failure, or nil on
// a clean, signal-driven stop.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("admin listener starting", "addr", a.admin.Addr)
		if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: admin listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout())
		defer cancel()
		return a.admin.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		tr := a.transport
		if tr == nil {
			tr = &mcpsdk.StdioTransport{}
		}
		slog.Info("MCP server listening", "tools", len(tools.Names()))
		if err := a.mcpServer.Run(ctx, tr); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: mcp server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Degraded upstream ───────────────────────────────────────────────────────

// unconfiguredUpstream stands in when no TMDB API key is configured. Every
// call fails with a non-retryable error naming the missing key.
type unconfiguredUpstream struct{}

var errNoAPIKey = types.Errorf(types.KindInternal, "TMDB API key is not configured (set tmdb.api_key or TMDB_API_KEY)")

func (unconfiguredUpstream) Search(context.Context, tmdb.MediaType, tmdb.SearchParams) (*tmdb.Page, error) {
	return nil, errNoAPIKey
}

func (unconfiguredUpstream) Recommendations(context.Context, tmdb.MediaType, int64, string) (*tmdb.Page, error) {
	return nil, errNoAPIKey
}

func (unconfiguredUpstream) Discover(context.Context, tmdb.MediaType, tmdb.DiscoverParams) (*tmdb.Page, error) {
	return nil, errNoAPIKey
}

var _ tools.Upstream = unconfiguredUpstream{}
