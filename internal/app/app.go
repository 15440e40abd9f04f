// README: Composition root; builds providers, gateway, store and orchestrator from config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wayfarer/internal/ai"
	"wayfarer/internal/config"
	"wayfarer/internal/infra"
	"wayfarer/internal/maps"
	"wayfarer/internal/modules/dialogue"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/gateway"
	"wayfarer/internal/modules/guard"
	"wayfarer/internal/modules/location"
	"wayfarer/internal/modules/quota"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/modules/tools"
	"wayfarer/internal/search"
)

const (
	quotaKeepDays = 30
	pruneEvery    = time.Minute
)

type Options struct {
	// MigrationsDir is applied when a Postgres pool is opened. Empty skips.
	MigrationsDir string
	// Offline forces in-memory session state and search cache whatever the
	// config says. The CLI uses it.
	Offline bool
}

type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Orchestrator *dialogue.Orchestrator
	Store        *session.Store
	Guard        *guard.Guard
	IPLimiter    *guard.KeyedLimiter
	Gateway      *gateway.Gateway

	db      *pgxpool.Pool
	quota   *quota.Service
	closers []func()
}

// New wires the application. Providers without an API key are skipped with
// a warning; the app still runs on whatever remains.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	sessionBackend, cacheBackend := cfg.Session.Backend, cfg.Gateway.CacheBackend
	if opts.Offline {
		sessionBackend, cacheBackend = "memory", "memory"
	}

	var rdb *redis.Client
	if sessionBackend == "redis" || cacheBackend == "redis" {
		c, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		rdb = c
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	var db *pgxpool.Pool
	if !opts.Offline && (sessionBackend == "postgres" || cfg.Gateway.DailyQuota > 0) {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		db, a.db = pool, pool
		a.closers = append(a.closers, pool.Close)
		if opts.MigrationsDir != "" {
			if err := infra.ApplyMigrations(ctx, db, opts.MigrationsDir); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
	}

	var backend session.Backend
	switch sessionBackend {
	case "memory":
		backend = session.NewMemoryBackend()
	case "redis":
		backend = session.NewRedisBackend(rdb)
	case "postgres":
		backend = session.NewPostgresBackend(db)
	default:
		return nil, fmt.Errorf("unknown session backend %q", sessionBackend)
	}
	a.Store = session.NewStore(backend, session.Config{
		TTL:           cfg.Session.TTL,
		HistoryLimit:  cfg.Session.HistoryLimit,
		SweepInterval: cfg.Session.SweepInterval,
	}, logger.Named("session"))

	var cache gateway.Cache
	switch cacheBackend {
	case "redis":
		cache = gateway.NewRedisCache(rdb)
	default:
		cache = gateway.NewMemoryCache(nil)
	}

	budgets := gateway.Budgets{gateway.NewRateBudget(cfg.Gateway.ProviderRPS, cfg.Gateway.ProviderBurst)}
	if db != nil && cfg.Gateway.DailyQuota > 0 {
		a.quota = quota.NewService(quota.NewStore(db), cfg.Gateway.DailyQuota, nil)
		budgets = append(budgets, a.quota)
	}

	completion, err := a.completionProviders(ctx)
	if err != nil {
		return nil, err
	}
	var geocoder location.Geocoder
	if key := cfg.Providers.GoogleMaps.APIKey; key != "" {
		g, err := maps.NewGeocodeService(key)
		if err != nil {
			return nil, err
		}
		geocoder = g
	}
	searchers, err := a.searchProviders()
	if err != nil {
		return nil, err
	}

	a.Gateway = gateway.New(gateway.Config{
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		InitialBackoff: cfg.Gateway.InitialBackoff,
		MaxBackoff:     cfg.Gateway.MaxBackoff,
		CallTimeout:    cfg.Gateway.CallTimeout,
		CacheTTL:       cfg.Gateway.CacheTTL,
	}, gateway.Deps{
		Completion: completion,
		Search:     searchers,
		Cache:      cache,
		Budget:     budgets,
		Logger:     logger.Named("gateway"),
	})

	// A nil *Gateway stored in the interface would look non-nil to the
	// extractor, so the completer is only set when a model is configured.
	var completer extract.Completer
	if len(completion) > 0 {
		completer = a.Gateway
	}
	directory := location.NewDirectory(geocoder, logger.Named("location"))

	a.Guard = guard.New(guard.Config{
		MaxUtteranceLen: cfg.Guard.MaxUtterance,
		PerMinute:       cfg.Guard.PerMinute,
		Burst:           cfg.Guard.Burst,
	}, logger.Named("guard"))
	if cfg.HTTP.IPPerMinute > 0 {
		a.IPLimiter = guard.NewKeyedLimiter(cfg.HTTP.IPPerMinute, cfg.HTTP.IPPerMinute/4+1, 30*time.Minute)
	}

	registry := tools.NewRegistry(
		tools.NewFlightTool(a.Gateway, directory),
		tools.NewHotelTool(a.Gateway),
		tools.NewInfoTool(a.Gateway),
	)
	schema := registry.Require(cfg.Dialogue.Schema)

	a.Orchestrator = dialogue.New(dialogue.Config{
		TurnTimeout:     cfg.Turn.Timeout,
		MaxTurnRetries:  cfg.Turn.MaxRetries,
		RetryBackoff:    cfg.Turn.RetryBackoff,
		ResultTTL:       cfg.Turn.ResultTTL,
		ConfirmInferred: cfg.Turn.ConfirmInferred,
		MaxPassengers:   cfg.Dialogue.MaxPassengers,
		MaxGuests:       cfg.Dialogue.MaxGuests,
	}, dialogue.Deps{
		Store:     a.Store,
		Extractor: extract.NewExtractor(completer, schema, cfg.Location(), logger.Named("extract")),
		Tools:     registry,
		Directory: directory,
		Guard:     a.Guard,
		Schema:    schema,
		Logger:    logger.Named("dialogue"),
	})

	ok = true
	return a, nil
}

func (a *App) completionProviders(ctx context.Context) ([]ai.Provider, error) {
	var out []ai.Provider
	for _, name := range a.Config.Completion.Names() {
		var pc config.ProviderConfig
		var baseURL string
		switch name {
		case "gemini":
			pc = a.Config.Providers.Gemini
			if pc.APIKey == "" {
				a.Logger.Warn("completion provider disabled, no api key", zap.String("provider", name))
				continue
			}
			p, err := ai.NewGeminiProvider(ctx, pc.APIKey, pc.Model)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, p.Close)
			out = append(out, p)
			continue
		case "deepseek":
			pc, baseURL = a.Config.Providers.DeepSeek, ai.DeepSeekBaseURL
		case "groq":
			pc, baseURL = a.Config.Providers.Groq, ai.GroqBaseURL
		case "openai":
			pc, baseURL = a.Config.Providers.OpenAI, ai.OpenAIBaseURL
		default:
			return nil, fmt.Errorf("unknown completion provider %q", name)
		}
		if pc.APIKey == "" {
			a.Logger.Warn("completion provider disabled, no api key", zap.String("provider", name))
			continue
		}
		if pc.BaseURL != "" {
			baseURL = pc.BaseURL
		}
		p, err := ai.NewChatProvider(ai.ChatConfig{Name: name, BaseURL: baseURL, APIKey: pc.APIKey, Model: pc.Model})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		a.Logger.Warn("no completion provider configured, extraction runs on patterns only")
	}
	return out, nil
}

func (a *App) searchProviders() ([]search.Provider, error) {
	var out []search.Provider
	for _, name := range a.Config.Search.Names() {
		switch name {
		case "serper":
			pc := a.Config.Providers.Serper
			if pc.APIKey == "" {
				a.Logger.Warn("search provider disabled, no api key", zap.String("provider", name))
				continue
			}
			p, err := search.NewSerperProvider(pc.APIKey, pc.BaseURL, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "google_maps", "google_places":
			pc := a.Config.Providers.GoogleMaps
			if pc.APIKey == "" {
				a.Logger.Warn("search provider disabled, no api key", zap.String("provider", name))
				continue
			}
			p, err := maps.NewPlacesService(pc.APIKey, 0)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown search provider %q", name)
		}
	}
	if len(out) == 0 {
		a.Logger.Warn("no search provider configured, tool calls will degrade")
	}
	return out, nil
}

// RunBackground starts the maintenance loops and returns immediately. They
// stop with ctx.
func (a *App) RunBackground(ctx context.Context) {
	go a.Store.RunEvictionLoop(ctx)
	go a.Guard.RunPruneLoop(ctx)
	if a.IPLimiter != nil {
		go a.IPLimiter.RunPruneLoop(ctx, pruneEvery)
	}
	if a.quota != nil {
		go a.runQuotaPrune(ctx)
	}
}

func (a *App) runQuotaPrune(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.quota.PruneBefore(ctx, quotaKeepDays)
			if err != nil {
				a.Logger.Warn("quota prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Logger.Debug("quota rows pruned", zap.Int64("rows", n))
			}
		}
	}
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
