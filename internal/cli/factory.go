package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/tabloop"
	"github.com/aretw0/tabloop/internal/config"
	"github.com/aretw0/tabloop/pkg/adapters/gemini"
	"github.com/aretw0/tabloop/pkg/adapters/memory"
	"github.com/aretw0/tabloop/pkg/adapters/openai"
	"github.com/aretw0/tabloop/pkg/adapters/redis"
	"github.com/aretw0/tabloop/pkg/adapters/sqlite"
	"github.com/aretw0/tabloop/pkg/ledger"
	"github.com/aretw0/tabloop/pkg/llm"
	"github.com/aretw0/tabloop/pkg/observability"
	"github.com/aretw0/tabloop/pkg/persistence/middleware"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrMissingAPIKey is returned when a hosted provider has no key in its environment variable.
var ErrMissingAPIKey = errors.New("missing API key")

// Runtime bundles an engine with the resources the CLI must release.
type Runtime struct {
	Engine   *tabloop.Engine
	Registry *prometheus.Registry
	closers  []func() error
}

// Close releases ledger connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Build wires an engine from cfg. Extra sinks receive every loop event.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, sinks ...ports.Sink) (*Runtime, error) {
	model, err := NewModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Registry: prometheus.NewRegistry()}
	opts := []tabloop.Option{
		tabloop.WithLogger(logger),
		tabloop.WithMetrics(observability.NewMetrics(rt.Registry)),
		tabloop.WithSink(observability.NewLogSink(logger, slog.LevelDebug)),
		tabloop.WithMaxIterations(cfg.Loop.MaxIterations),
		tabloop.WithMaxTokens(cfg.Loop.MaxTokens),
		tabloop.WithForceMaxTokens(cfg.Loop.ForceMaxTokens),
		tabloop.WithPreviewRows(cfg.Loop.PreviewRows),
		tabloop.WithSandboxTimeout(cfg.Sandbox.Timeout),
	}
	for _, s := range sinks {
		opts = append(opts, tabloop.WithSink(s))
	}

	backend, err := openBackend(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	if backend.close != nil {
		rt.closers = append(rt.closers, backend.close)
	}
	opts = append(opts, tabloop.WithLedgerStore(backend.store))
	if backend.locker != nil {
		opts = append(opts, tabloop.WithLedgerLocker(backend.locker))
	}
	if backend.sink != nil {
		opts = append(opts, tabloop.WithSink(backend.sink))
	}

	rt.Engine = tabloop.New(model, opts...)
	logger.Debug("Engine ready", "provider", cfg.Model.Provider, "ledger", cfg.Ledger.Backend)
	return rt, nil
}

// OpenLedger opens the configured ledger on its own, for commands that need
// no model. The returned function releases the backend.
func OpenLedger(cfg config.LedgerConfig, logger *slog.Logger) (*ledger.Ledger, func() error, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []ledger.Option{ledger.WithLogger(logger)}
	if backend.locker != nil {
		opts = append(opts, ledger.WithLocker(backend.locker))
	}
	closeFn := backend.close
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return ledger.New(backend.store, opts...), closeFn, nil
}

type ledgerBackend struct {
	store  ports.LedgerStore
	locker ports.DistributedLocker
	sink   ports.Sink
	close  func() error
}

func openBackend(cfg config.LedgerConfig) (ledgerBackend, error) {
	backend, err := openStore(cfg)
	if err != nil {
		return ledgerBackend{}, err
	}
	mws, err := ledgerMiddleware(cfg)
	if err != nil {
		if backend.close != nil {
			backend.close()
		}
		return ledgerBackend{}, err
	}
	backend.store = middleware.Chain(backend.store, mws...)
	return backend, nil
}

// ledgerMiddleware redacts before encrypting, so ciphertext never holds raw PII.
func ledgerMiddleware(cfg config.LedgerConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if cfg.Redact {
		patterns := cfg.RedactPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPIIPatterns
		}
		pii, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		mws = append(mws, pii)
	}
	if raw := cfg.EncryptionKey(); raw != "" {
		key, err := middleware.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", config.ErrInvalid, cfg.EncryptionKeyEnv, err)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return mws, nil
}

func openStore(cfg config.LedgerConfig) (ledgerBackend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return ledgerBackend{store: memory.NewLedgerStore()}, nil
	case config.BackendRedis:
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		store := redis.New(cfg.RedisAddr, "", 0, redis.WithPrefix(prefix), redis.WithTTL(cfg.TTL))
		return ledgerBackend{
			store:  store,
			locker: redis.NewLocker(store.Client(), prefix),
			sink:   redis.NewPublisher(store.Client(), redis.DefaultChannel),
			close:  store.Close,
		}, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return ledgerBackend{}, err
		}
		return ledgerBackend{store: store, close: store.Close}, nil
	default:
		return ledgerBackend{}, fmt.Errorf("%w: unknown ledger.backend %q", config.ErrInvalid, cfg.Backend)
	}
}

// NewModel builds the configured model client, rate limited when requested.
func NewModel(ctx context.Context, cfg config.ModelConfig) (ports.Model, error) {
	var model ports.Model
	switch cfg.Provider {
	case config.ProviderOpenAI:
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.APIKeyEnv)
		}
		var opts []openai.Option
		if cfg.Name != "" {
			opts = append(opts, openai.WithModel(cfg.Name))
		}
		model = openai.New(key, cfg.BaseURL, opts...)
	case config.ProviderGemini:
		m, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey(), Model: cfg.Name, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		model = m
	case config.ProviderScript:
		s, err := llm.LoadScript(cfg.Script)
		if err != nil {
			return nil, err
		}
		model = s
	default:
		return nil, fmt.Errorf("%w: unknown model.provider %q", config.ErrInvalid, cfg.Provider)
	}

	if cfg.RatePerMinute > 0 {
		model = llm.NewRateLimited(model, cfg.RatePerMinute, 1)
	}
	return model, nil
}
