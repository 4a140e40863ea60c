package credtrust

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/credtrust/credtrust/internal/audit"
	"github.com/credtrust/credtrust/internal/limiters"
	"github.com/credtrust/credtrust/internal/metrics"
	"github.com/credtrust/credtrust/internal/rate"
	"github.com/credtrust/credtrust/jwt"
	"github.com/credtrust/credtrust/password"
	"github.com/credtrust/credtrust/store"
)

// Builder assembles an Engine. Configure it during initialization and call
// Build once; the builder is not safe for concurrent use.
type Builder struct {
	config   Config
	store    store.Store
	notifier Notifier
	sink     AuditSink
	logger   *slog.Logger
	redis    redis.UniversalClient

	built bool
}

// New returns a builder loaded with DefaultConfig. Keys are not defaulted;
// set Config.JWT before Build.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's config with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithNotifier sets the out-of-band delivery channel for verification codes
// and reset secrets. Defaults to a LoggerNotifier.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink adds a caller-owned sink next to the store-backed one.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis switches rate limiting from the in-process counter to a shared
// Redis backend, so budgets hold across replicas.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// Build validates the configuration, wires the engine, and starts the cleanup
// sweeper when one is configured.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NewLoggerNotifier(logger)
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		logger:     logger,
		store:      b.store,
		notifier:   notifier,
		hasher:     hasher,
		jwtManager: jwtManager,
		metrics:    metrics.New(),
	}

	engine.lockout = limiters.NewLockout(limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	})
	engine.resetRequests = limiters.NewWindow(cfg.Reset.RequestsPerHour, resetRequestWindow)
	engine.resetConfirm = limiters.NewLockout(limiters.LockoutConfig{
		Threshold: cfg.Reset.ConfirmThreshold,
		Duration:  cfg.Reset.ConfirmLockout,
	})

	if b.redis != nil {
		engine.rateLimiter = rate.NewRedis(b.redis)
	} else {
		engine.rateLimiter = rate.NewMemory()
	}

	if cfg.Audit.Enabled {
		engine.audit = audit.NewDispatcher(
			b.buildSink(logger, cfg),
			cfg.Audit.BufferSize,
			cfg.Audit.DropIfFull,
		)
	}

	if cfg.Cleanup.Interval > 0 {
		engine.startSweeper(cfg.Cleanup.Interval)
	}

	b.built = true

	return engine, nil
}

func (b *Builder) buildSink(logger *slog.Logger, cfg Config) audit.Sink {
	var sinks []audit.Sink
	if cfg.Audit.PersistEvents {
		sinks = append(sinks, audit.NewStoreSink(b.store, logger))
	}
	if b.sink != nil {
		sinks = append(sinks, b.sink)
	}

	switch len(sinks) {
	case 0:
		return audit.NoOpSink{}
	case 1:
		return sinks[0]
	default:
		return audit.MultiSink(sinks)
	}
}
