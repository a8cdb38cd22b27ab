package main

import (
	"context"
	"fmt"
	"io"

	"github.com/erp/crm/internal/api/auth"
	"github.com/erp/crm/internal/api/payments"
	"github.com/erp/crm/internal/api/products"
	salesapi "github.com/erp/crm/internal/api/sales"
	"github.com/erp/crm/internal/api/users"
	catalogapp "github.com/erp/crm/internal/application/catalog"
	financeapp "github.com/erp/crm/internal/application/finance"
	identityapp "github.com/erp/crm/internal/application/identity"
	"github.com/erp/crm/internal/application/livesync"
	"github.com/erp/crm/internal/application/optimistic"
	salesapp "github.com/erp/crm/internal/application/sales"
	"github.com/erp/crm/internal/infrastructure/cache"
	"github.com/erp/crm/internal/infrastructure/config"
	"github.com/erp/crm/internal/infrastructure/httpclient"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds everything a command needs, built from configuration
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *telemetry.Metrics
	redis   *redis.Client
	bus     *cache.RedisBroadcaster
	client  *httpclient.Client
	console *console
	out     *printer
	stdin   io.Reader

	sessions *identityapp.Sessions
	users    *identityapp.Users
	finance  *financeapp.Service
	catalog  *catalogapp.Service
	sales    *salesapp.Service
	live     *livesync.Listener
}

func newApp(ctx context.Context, opts globalOptions, stdin io.Reader, stderr io.Writer, out *printer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Verbose: opts.verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: telemetry.NewMetrics(),
		console: newConsole(stderr),
		out:     out,
		stdin:   stdin,
	}

	if cfg.NeedsRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr(), err)
		}
	}

	storeOpts := []cache.Option{
		cache.WithStaleTime(cfg.Cache.StaleTime),
		cache.WithLogger(log),
		cache.WithMetrics(a.metrics),
	}
	if cfg.Cache.BroadcastEnabled {
		a.bus = cache.NewRedisBroadcasterWithClient(a.redis,
			cache.WithChannel(cfg.Cache.BroadcastChannel),
			cache.WithBroadcastLogger(log))
		storeOpts = append(storeOpts, cache.WithBroadcaster(a.bus))
	}
	store := cache.NewStore(storeOpts...)
	if a.bus != nil {
		a.live = livesync.NewListener(a.bus, store, livesync.WithLogger(log))
	}

	a.client, err = httpclient.NewFromConfig(cfg.API,
		httpclient.WithTokenStore(a.tokenStore()),
		httpclient.WithRedirector(httpclient.RedirectFunc(a.sessionExpired)),
		httpclient.WithLogger(log),
		httpclient.WithMetrics(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create http client: %w", err)
	}

	var notifier optimistic.Notifier = a.console
	if opts.verbose {
		notifier = optimistic.Multi{a.console, optimistic.NewLogNotifier(log)}
	}
	runner := optimistic.NewRunner(store,
		optimistic.WithNotifier(notifier),
		optimistic.WithLogger(log),
		optimistic.WithMetrics(a.metrics),
	)

	a.sessions = identityapp.NewSessions(a.client, auth.New(a.client, cfg.API.LoginPath), store, log)
	a.users = identityapp.NewUsers(users.New(a.client), runner)
	a.finance = financeapp.NewService(payments.New(a.client), runner)
	a.catalog = catalogapp.NewService(products.New(a.client), runner)
	a.sales = salesapp.NewService(salesapi.New(a.client), runner)

	log.Debug("crmctl initialized",
		zap.String("base_url", cfg.API.BaseURL),
		zap.String("session_store", cfg.Session.Store),
		zap.Bool("broadcast", cfg.Cache.BroadcastEnabled))
	return a, nil
}

func (a *app) tokenStore() httpclient.TokenStore {
	switch a.cfg.Session.Store {
	case "memory":
		return httpclient.NewMemoryStore(httpclient.Session{})
	case "redis":
		return httpclient.NewRedisStore(a.redis, a.cfg.Session.RedisKey, a.cfg.Session.RedisTTL)
	default:
		return httpclient.NewFileStore(a.cfg.Session.Path)
	}
}

// sessionExpired stands in for navigating to the login screen
func (a *app) sessionExpired(ctx context.Context, route string) {
	a.log.Debug("session cannot be refreshed", zap.String("login_route", route))
	a.console.notice("Session expired or missing. Run `crmctl login <email>` to sign in.")
}

// Close releases connections held by the app
func (a *app) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("closing invalidation broadcaster", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("closing redis client", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
