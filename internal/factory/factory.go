package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"login-guard/internal/client"
	"login-guard/internal/config"
	"login-guard/internal/guard"
	"login-guard/internal/identity"
	"login-guard/internal/repository"
	"login-guard/internal/repository/memory"
	redisrepo "login-guard/internal/repository/redis"
	"login-guard/internal/repository/sqlite"
	"login-guard/internal/service"
	"login-guard/internal/tls"
	"login-guard/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.Manager

	// Clients
	redisClient   *client.RedisClient
	sqliteStore   *sqlite.AttemptStore
	kafkaProducer *client.KafkaProducer

	store        repository.Store
	storeDriver  string
	loginService *service.LoginService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration from the environment and builds everything
// the server needs.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return New(cfg, util.Get())
}

func New(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{
		config: cfg,
		logger: util.OrNop(logger),
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		m, err := tls.NewManager(cfg.Server, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		f.tlsManager = m
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := f.initializeService(); err != nil {
		f.Close()
		return nil, err
	}

	f.logger.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("storage_driver", f.storeDriver),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
	)
	return f, nil
}

// initializeClients opens the attempt store and the optional event
// producer. Outside production an unreachable store falls back to memory.
func (f *Factory) initializeClients() error {
	var initErrors []error

	switch f.config.Storage.Driver {
	case "redis":
		rc, err := client.NewRedisClient(f.config.Redis, f.logger)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
			break
		}
		f.redisClient = rc
		f.store = redisrepo.NewAttemptStore(rc, f.config.Guard.StorePrefix, f.logger)
		f.storeDriver = "redis"
	case "sqlite":
		st, err := sqlite.Open(f.config.Storage.SQLitePath)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("sqlite: %w", err))
			break
		}
		f.sqliteStore = st
		f.store = repository.NewScoped(st, f.config.Guard.StorePrefix)
		f.storeDriver = "sqlite"
	}

	if f.config.KafkaEnabled() {
		if producer, err := client.NewKafkaProducer(f.config.Kafka, f.logger); err != nil {
			f.logger.Warn("Kafka producer initialization failed - proceeding without login events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			f.logger.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	if f.store == nil {
		if f.config.Storage.Driver != "memory" {
			f.logger.Warn("Attempt state will not survive restarts",
				util.String("requested_driver", f.config.Storage.Driver))
		}
		f.store = memory.NewStore()
		f.storeDriver = "memory"
	}
	return nil
}

func (f *Factory) initializeService() error {
	cfg := f.config
	provider := identity.NewRESTProvider(identity.RESTConfig{
		BaseURL: cfg.Identity.BaseURL,
		APIKey:  cfg.Identity.APIKey,
		Timeout: cfg.Identity.Timeout,
	}, nil, f.logger)
	backend := client.NewBackendClient(cfg.Backend, nil, f.logger)

	// A nil *KafkaProducer must not become a non-nil interface.
	var events guard.EventPublisher
	if f.kafkaProducer != nil {
		events = f.kafkaProducer
	}

	svc, err := service.NewLoginService(service.Options{
		Provider: provider,
		Store:    f.store,
		Backend:  backend,
		Events:   events,
		Guard: guard.Config{
			MaxAttempts:     cfg.Guard.MaxAttempts,
			CooldownSeconds: cfg.Guard.CooldownSeconds,
		},
		ResendCooldown: cfg.Verification.ResendCooldown,
		TickInterval:   cfg.Guard.TickInterval,
		IdleTTL:        cfg.Sessions.IdleTTL,
		Shards:         cfg.Sessions.Shards,
		Logger:         f.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create login service: %w", err)
	}
	f.loginService = svc
	return nil
}

// HealthCheck probes every external dependency concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		healthErrors[name] = err
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var g errgroup.Group
	if f.redisClient != nil {
		g.Go(func() error {
			record("redis", f.redisClient.HealthCheck(ctx))
			return nil
		})
	}
	if f.sqliteStore != nil {
		g.Go(func() error {
			record("sqlite", f.sqliteStore.HealthCheck(ctx))
			return nil
		})
	}
	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(ctx))
			return nil
		})
	}
	_ = g.Wait()

	if f.loginService == nil {
		healthErrors["login_service"] = fmt.Errorf("login service not initialized")
	}
	return healthErrors
}

// IsHealthy ignores Kafka; login events are best effort.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.logger.Info("Shutting down factory...")

		if f.loginService != nil {
			f.loginService.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				f.logger.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.sqliteStore != nil {
			if err := f.sqliteStore.Close(); err != nil {
				f.logger.Error("Failed to close SQLite store", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				f.logger.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		f.logger.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}

func (f *Factory) Done() <-chan struct{} {
	return f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) LoginService() *service.LoginService {
	return f.loginService
}

// StoreDriver is the attempt store actually in use, which may be "memory"
// after a fallback.
func (f *Factory) StoreDriver() string {
	return f.storeDriver
}
