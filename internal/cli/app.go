package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"options-analytics/internal/analytics"
	"options-analytics/internal/config"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/greeks"
	"options-analytics/internal/logging"
	"options-analytics/internal/performance"
	"options-analytics/internal/provider"
	"options-analytics/internal/provider/kite"
	"options-analytics/internal/provider/polygon"
	"options-analytics/internal/resilience"
	"options-analytics/internal/store"
	"options-analytics/pkg/utils"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Clock    func() time.Time
	Store    *store.SQLiteStore
	Provider provider.Provider
	Breakers *resilience.Registry
	Pool     *performance.WorkerPool

	ownsStore bool
	ownsPool  bool
}

// Init opens the store and builds the provider chain and worker pool for
// whatever the caller has not supplied.
func (a *App) Init(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	if a.Clock == nil {
		a.Clock = time.Now
	}
	if a.Breakers == nil {
		defaults := resilientConfig(a.Config.Providers).Breaker
		defaults.Clock = a.Clock
		defaults.OnStateChange = func(name string, from, to resilience.CircuitState) {
			event := logger.Info()
			if to == resilience.CircuitOpen {
				event = logger.Warn()
			}
			event.Str("provider", name).Str("from", string(from)).Str("to", string(to)).Msg("Provider circuit changed state")
		}
		a.Breakers = resilience.NewRegistry(defaults)
	}

	if a.Store == nil && a.Config.Store.Path != "" {
		st, err := openStore(a.Config, a.Clock)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize store, caching and offline data are unavailable")
		} else {
			a.Store = st
			a.ownsStore = true
			logger.Debug().Str("path", a.Config.Store.Path).Msg("SQLite store initialized")
		}
	}

	if a.Provider == nil {
		a.Provider = a.buildProviders(logger)
	}

	if a.Pool == nil {
		a.Pool = performance.NewWorkerPool(a.Config.Analytics.Workers)
		a.Pool.Start()
		a.ownsPool = true
	}
	return nil
}

// Close releases what Init opened. It is safe to call more than once.
func (a *App) Close() error {
	if a.ownsPool && a.Pool != nil {
		a.Pool.Stop()
		a.Pool = nil
	}
	if a.ownsStore && a.Store != nil {
		err := a.Store.Close()
		a.Store = nil
		return err
	}
	return nil
}

func openStore(cfg *config.Config, clock func() time.Time) (*store.SQLiteStore, error) {
	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return nil, err
		}
	}
	return store.NewSQLiteStoreWithOptions(cfg.Store.Path, store.Options{
		Clock:  clock,
		MaxAge: cfg.Store.MaxAge,
	})
}

// resilientConfig maps provider settings onto the retry and circuit policy.
func resilientConfig(cfg config.ProvidersConfig) provider.ResilientConfig {
	rc := provider.DefaultResilientConfig()
	rc.Timeout = cfg.Timeout
	rc.Retry.MaxAttempts = cfg.Retry.MaxAttempts
	rc.Retry.InitialDelay = cfg.Retry.InitialDelay
	rc.Retry.MaxDelay = cfg.Retry.MaxDelay
	rc.Retry.BackoffFactor = cfg.Retry.BackoffFactor
	rc.Breaker = resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		Timeout:          cfg.Circuit.Timeout,
	}
	return rc
}

// buildProviders assembles the configured providers in priority order.
// Network providers without credentials are left out. Each network
// provider is wrapped in the write-through cache when a store is open,
// then in retry and circuit breaking.
func (a *App) buildProviders(logger zerolog.Logger) provider.Provider {
	cfg := a.Config
	rc := resilientConfig(cfg.Providers)

	remote := func(p provider.Provider) provider.Provider {
		if cfg.Providers.Cache && a.Store != nil {
			p = store.NewCaching(p, a.Store, a.Clock)
		}
		return provider.NewResilient(p, rc, a.Breakers)
	}

	var chain []provider.Provider
	for _, name := range cfg.Providers.Priority {
		switch strings.ToLower(name) {
		case config.ProviderKite:
			creds := cfg.Credentials.Kite
			if creds.APIKey == "" || creds.AccessToken == "" {
				logger.Debug().Msg("Kite credentials not set, skipping provider")
				continue
			}
			chain = append(chain, remote(kite.New(kite.Config{
				APIKey:      creds.APIKey,
				AccessToken: creds.AccessToken,
				Clock:       a.Clock,
				Rate:        cfg.Analytics.RiskFreeRate,
				RateLimit:   cfg.Providers.RateLimit,
				Burst:       cfg.Providers.Burst,
			})))

		case config.ProviderPolygon:
			if cfg.Credentials.Polygon.APIKey == "" {
				logger.Debug().Msg("Polygon API key not set, skipping provider")
				continue
			}
			chain = append(chain, remote(polygon.New(polygon.Config{
				APIKey:    cfg.Credentials.Polygon.APIKey,
				Clock:     a.Clock,
				Currency:  cfg.Providers.Polygon.Currency,
				Rate:      cfg.Analytics.RiskFreeRate,
				RateLimit: cfg.Providers.RateLimit,
				Burst:     cfg.Providers.Burst,
			})))

		case config.ProviderSQLite:
			if a.Store != nil {
				chain = append(chain, a.Store)
			}
		}
	}

	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.Name()
	}
	logger.Debug().Strs("providers", names).Msg("Provider chain built")

	return provider.Combine(chain...)
}

// greeksEngine returns an engine at the configured rate, or at rate when
// rate is set.
func (a *App) greeksEngine(rate *float64) *greeks.Engine {
	r := a.Config.Analytics.RiskFreeRate
	if rate != nil {
		r = *rate
	}
	return &greeks.Engine{Clock: greeks.Clock(a.now), Rate: r}
}

func (a *App) analyticsEngine(rate *float64) analytics.Engine {
	return analytics.Engine{Greeks: a.greeksEngine(rate), Pool: a.Pool}
}

func (a *App) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock()
}

// market returns the session used for date-only expiries.
func market(name string) (utils.Market, error) {
	switch strings.ToLower(name) {
	case "", "us":
		return utils.US, nil
	case "nse", "in", "india":
		return utils.NSE, nil
	default:
		return utils.Market{}, apperrors.NewValidationError(apperrors.ErrInvalidArgument, "market", name, "must be us or nse")
	}
}
