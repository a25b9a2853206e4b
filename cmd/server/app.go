package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mutuelle/internal/auth/lockout"
	authservice "mutuelle/internal/auth/service"
	"mutuelle/internal/auth/token"
	dircache "mutuelle/internal/directory/cache"
	dirservice "mutuelle/internal/directory/service"
	dirstore "mutuelle/internal/directory/store"
	ledgermetrics "mutuelle/internal/ledger/metrics"
	ledger "mutuelle/internal/ledger/models"
	ledgerservice "mutuelle/internal/ledger/service"
	ledgerstore "mutuelle/internal/ledger/store"
	"mutuelle/internal/platform/config"
	"mutuelle/internal/platform/kafka"
	"mutuelle/internal/platform/metrics"
	"mutuelle/internal/platform/postgres"
	platformredis "mutuelle/internal/platform/redis"
	"mutuelle/internal/ratelimit"
	"mutuelle/internal/subscription"
	httptransport "mutuelle/internal/transport/http"
	"mutuelle/internal/treatment"
	"mutuelle/internal/verification"
	audit "mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/audit/outbox"
	"mutuelle/pkg/platform/audit/publisher"
	auditkafka "mutuelle/pkg/platform/audit/store/kafka"
	auditmemory "mutuelle/pkg/platform/audit/store/memory"
	auditpostgres "mutuelle/pkg/platform/audit/store/postgres"
	"mutuelle/pkg/platform/circuit"
)

const (
	auditBufferSize   = 1024
	auditPartitions   = 3
	auditReplication  = 1
	placementCacheKey = "mutuelle:"
)

// directoryStore is what both the directory and sign-in need from storage.
type directoryStore interface {
	dirservice.Store
	authservice.OperatorStore
}

// app holds every wired component. Postgres, Redis and Kafka are each
// optional; without them the service runs on process memory.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	plan     ledger.Plan

	directory    *dirservice.Service
	entitlements *ledgerservice.Service
	auth         *authservice.Service
	recorder     *treatment.Recorder
	activator    *subscription.Activator
	gateway      *verification.Gateway
	sweeper      *subscription.Sweeper
	relay        *outbox.Relay
	limiter      *ratelimit.Limiter

	health  map[string]httptransport.HealthCheck
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		health:   map[string]httptransport.HealthCheck{},
		plan: ledger.Plan{
			HospitalizationCap: cfg.Plan.HospitalizationCap,
			AmbulatoryCap:      cfg.Plan.AmbulatoryCap,
			Location:           cfg.Plan.Location(),
		},
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dirStore, accounts, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	placements, attempts, limits, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.openLimiter(limits); err != nil {
		return nil, err
	}
	auditStore, err := a.openAudit(ctx)
	if err != nil {
		return nil, err
	}
	pub := publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(auditBufferSize), publisher.WithLogger(logger))
	a.closers = append(a.closers, pub.Close)

	a.entitlements, err = ledgerservice.New(accounts, a.plan,
		ledgerservice.WithLogger(logger),
		ledgerservice.WithMetrics(ledgermetrics.New(a.registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	a.directory, err = dirservice.New(dirStore, a.entitlements,
		dirservice.WithLogger(logger),
		dirservice.WithCache(placements, cfg.Redis.CacheTTL),
		dirservice.WithBreaker(circuit.New("placement-cache")),
		dirservice.WithAuditor(pub),
	)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	if cfg.Auth.JWTSigningKey == config.DevSigningKey {
		logger.Warn("JWT_SIGNING_KEY is unset, using the development key")
	}
	guard, err := lockout.New(attempts,
		lockout.WithLimits(cfg.Auth.MaxAttempts, cfg.Auth.LockoutWindow),
		lockout.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("lockout: %w", err)
	}
	tokens := token.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.JWTTTL)
	a.auth, err = authservice.New(dirStore, tokens,
		authservice.WithLockout(guard),
		authservice.WithLogger(logger),
		authservice.WithAuditor(pub),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	resolver := a.directory.Resolver()
	a.recorder, err = treatment.New(resolver, a.entitlements, treatment.WithLogger(logger), treatment.WithAuditor(pub))
	if err != nil {
		return nil, fmt.Errorf("treatments: %w", err)
	}
	a.activator, err = subscription.NewActivator(resolver, a.entitlements, subscription.WithLogger(logger), subscription.WithAuditor(pub))
	if err != nil {
		return nil, fmt.Errorf("subscriptions: %w", err)
	}
	a.gateway, err = verification.New(a.directory, a.entitlements,
		verification.WithLogger(logger),
		verification.WithAuditor(pub),
		verification.WithMetrics(a.registry),
	)
	if err != nil {
		return nil, fmt.Errorf("verification: %w", err)
	}
	a.sweeper, err = subscription.NewSweeper(a.entitlements,
		subscription.WithSweepLogger(logger),
		subscription.WithSweepAuditor(pub),
		subscription.WithSweepInterval(cfg.Sweep.Interval),
		subscription.WithSweepConcurrency(cfg.Sweep.Concurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("sweeper: %w", err)
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) (directoryStore, ledgerservice.Store, error) {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("DATABASE_URL is unset, directory and ledger are kept in memory")
		return dirstore.NewInMemory(), ledgerstore.NewInMemory(), nil
	}
	pool, err := postgres.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, pool.Close)
	a.health["postgres"] = pool.Ping
	if a.cfg.Database.MigrateOnStart {
		if err := postgres.Apply(ctx, pool); err != nil {
			return nil, nil, err
		}
	}
	return dirstore.NewPostgres(pool),
		ledgerstore.NewPostgres(pool, ledgerstore.WithPostgresLockTimeout(a.cfg.Database.LedgerLockWait)),
		nil
}

func (a *app) openCache(ctx context.Context) (dircache.Cache, lockout.Store, ratelimit.Store, error) {
	client, err := platformredis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if client == nil {
		return dircache.NewMemoryCache(), lockout.NewInMemoryStore(), ratelimit.NewInMemoryStore(), nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.health["redis"] = client.Health
	return dircache.NewRedisCache(client.Client, placementCacheKey),
		lockout.NewRedisStore(client.Client),
		ratelimit.NewRedisStore(client.Client),
		nil
}

// openLimiter leaves a.limiter nil when both budgets are disabled.
func (a *app) openLimiter(store ratelimit.Store) error {
	rl := a.cfg.RateLimit
	if rl.SignInPerMinute == 0 && rl.APIPerMinute == 0 {
		return nil
	}
	opts := []ratelimit.Option{ratelimit.WithLogger(a.logger)}
	if rl.SignInPerMinute > 0 {
		opts = append(opts, ratelimit.WithRule(ratelimit.ClassSignIn, rl.SignInPerMinute, time.Minute))
	}
	if rl.APIPerMinute > 0 {
		opts = append(opts, ratelimit.WithRule(ratelimit.ClassAPI, rl.APIPerMinute, time.Minute))
	}
	limiter, err := ratelimit.New(store, opts...)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	a.limiter = limiter
	return nil
}

// openAudit picks the audit sink. With a database, events go to the outbox
// and are relayed to Kafka when brokers are configured; without one they are
// published to Kafka directly or kept in memory.
func (a *app) openAudit(ctx context.Context) (audit.Store, error) {
	var producer *kafka.Producer
	if len(a.cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.AuditTopic, kafka.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		a.health["kafka"] = p.Ping
		if err := p.EnsureTopic(ctx, auditPartitions, auditReplication); err != nil {
			a.logger.Warn("audit topic not ensured", "topic", a.cfg.Kafka.AuditTopic, "error", err)
		}
		producer = p
	}

	if a.cfg.Database.URL == "" {
		if producer != nil {
			return auditkafka.New(producer), nil
		}
		return auditmemory.NewInMemoryStore(), nil
	}

	db, err := postgres.OpenSQL(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	store := auditpostgres.New(db)
	if producer != nil {
		a.relay = outbox.NewRelay(store, producer, outbox.WithLogger(a.logger))
	}
	return store, nil
}

// handler builds the HTTP surface. Only serve calls it, so the offline
// commands never register request metrics.
func (a *app) handler() http.Handler {
	var signInLimit, apiLimit func(http.Handler) http.Handler
	if a.limiter != nil {
		if a.cfg.RateLimit.SignInPerMinute > 0 {
			signInLimit = a.limiter.PerClientIP(ratelimit.ClassSignIn)
		}
		if a.cfg.RateLimit.APIPerMinute > 0 {
			apiLimit = a.limiter.PerOperator(ratelimit.ClassAPI)
		}
	}
	return httptransport.NewRouter(httptransport.Deps{
		Logger:         a.logger,
		Metrics:        metrics.New(a.registry),
		Gatherer:       a.registry,
		AllowedOrigins: a.cfg.Server.CORSAllowedOrigins,
		Health:         a.health,
		SignInLimit:    signInLimit,
		APILimit:       apiLimit,
		Authenticator:  a.auth,
		Auth:           httptransport.NewAuthHandler(a.auth, a.logger),
		Directory:      httptransport.NewDirectoryHandler(a.directory, a.logger),
		Members:        httptransport.NewMemberHandler(a.directory, a.recorder, a.activator, a.plan.Location, a.logger),
		Verification:   httptransport.NewVerificationHandler(a.gateway, a.logger),
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

var errNoDatabase = errors.New("DATABASE_URL is required for this command")
