// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/artpar/tacoscan/adapters/clock"
	"github.com/artpar/tacoscan/adapters/ethereum"
	apihttp "github.com/artpar/tacoscan/adapters/http"
	"github.com/artpar/tacoscan/adapters/idgen"
	"github.com/artpar/tacoscan/adapters/memory"
	"github.com/artpar/tacoscan/adapters/metrics"
	"github.com/artpar/tacoscan/adapters/sqlite"
	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/config"
	"github.com/artpar/tacoscan/domain/encryptor"
	"github.com/artpar/tacoscan/ports"
)

// Ledger is the full ledger capability the application needs.
type Ledger interface {
	ports.LedgerReader
	ports.LedgerWriter
	ports.LedgerHealth
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Rituals    *app.RitualService
	Dashboard  *app.DashboardService
	Payments   *app.PaymentService
	Encryptors *app.EncryptorService

	ledger Ledger
	client *ethereum.Client // nil when the ledger was injected
	holder *config.Holder
}

// Options provides optional configuration for application initialization.
type Options struct {
	// Holder enables hot reload of the log level and refresh interval.
	// When set, Config is taken from it.
	Holder *config.Holder

	// Config is used when no Holder is given.
	Config *config.Config

	// Version is reported by /version.
	Version string

	// Ledger replaces dialing chain.rpc_url.
	Ledger Ledger

	// Clock defaults to the system clock.
	Clock ports.Clock

	// Registerer receives the metrics collectors. Defaults to a fresh registry.
	Registerer prometheus.Registerer

	// LogOutput defaults to stdout.
	LogOutput io.Writer
}

// New creates and initializes the application.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if opts.Holder != nil {
		cfg = opts.Holder.Get()
	}
	if cfg == nil {
		return nil, fmt.Errorf("no configuration")
	}

	logger := setupLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Msg("initializing tacoscan")

	a := &App{
		Logger: logger,
		Config: cfg,
		holder: opts.Holder,
	}

	var reg prometheus.Registerer = opts.Registerer
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewWithRegistry(reg)
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initLedger(ctx, opts.Ledger); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	journal, err := a.initJournal(ctx)
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init database: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	a.initServices(clk, journal)

	var metricsHandler http.Handler
	if a.Metrics != nil && gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	a.initHTTPServer(opts.Version, metricsHandler)

	if a.holder != nil {
		a.holder.OnChange(a.applyConfig)
	}

	return a, nil
}

func (a *App) initLedger(ctx context.Context, injected Ledger) error {
	if injected != nil {
		a.ledger = injected
		return nil
	}

	chain := a.Config.Chain
	ledgerCfg := a.Config.Ledger
	opts := []ethereum.Option{
		ethereum.WithReadLimit(rate.Limit(ledgerCfg.ReadsPerSecond), ledgerCfg.ReadBurst),
		ethereum.WithWriteTimeout(ledgerCfg.WriteTimeout),
		ethereum.WithWatchInterval(ledgerCfg.WatchInterval),
		ethereum.WithLogger(a.Logger),
	}
	if chain.PrivateKey != "" {
		opts = append(opts, ethereum.WithSigner(chain.PrivateKey, chain.ChainID))
	}
	if a.Metrics != nil {
		opts = append(opts, ethereum.WithObserver(a.Metrics))
	}

	client, err := ethereum.Dial(ctx, chain.RPCURL, opts...)
	if err != nil {
		return err
	}
	a.client = client
	a.ledger = client

	ev := a.Logger.Info().Int64("chain_id", chain.ChainID)
	if from := client.From(); from != (common.Address{}) {
		ev = ev.Str("from", from.Hex())
	}
	ev.Msg("ledger client configured")
	return nil
}

func (a *App) initJournal(ctx context.Context) (ports.PaymentLog, error) {
	db := a.Config.Database
	if db.Driver == "memory" {
		a.Logger.Info().Msg("payment journal kept in memory")
		return memory.NewPaymentLog(), nil
	}

	conn, err := sqlite.Open(db.DSN)
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = conn
	a.Logger.Info().Str("dsn", db.DSN).Msg("database initialized")
	return sqlite.NewPaymentLog(conn), nil
}

func (a *App) initServices(clk ports.Clock, journal ports.PaymentLog) {
	chain := a.Config.Chain
	dash := a.Config.Dashboard

	var observer app.Observer
	if a.Metrics != nil {
		observer = a.Metrics
	}

	coordinator := config.Address(chain.Coordinator)
	a.Rituals = app.NewRitualService(a.ledger, coordinator, clk, a.Logger)
	a.Dashboard = app.NewDashboardService(a.ledger, a.Rituals, clk, observer, a.Logger, app.DashboardServiceConfig{
		RefreshInterval: dash.RefreshInterval,
		ReadTimeout:     dash.ReadTimeout,
		WatchEvents:     dash.WatchEventsEnabled(),
		IdleTimeout:     dash.IdleTimeout,
		MaxSessions:     dash.MaxSessions,
		Addresses: app.Addresses{
			Coordinator:      coordinator,
			FeeModel:         config.Address(chain.FeeModel),
			AccessController: config.Address(chain.AccessController),
			FeeToken:         config.Address(chain.FeeToken),
		},
	})
	a.Payments = app.NewPaymentService(a.Dashboard, a.ledger, journal, idgen.UUID{Prefix: "pay_"}, clk, observer, a.Logger)
	a.Encryptors = app.NewEncryptorService(a.ledger, a.ledger, encryptor.CheckMode(dash.AuthorizationCheckMode), observer, a.Logger)

	a.Logger.Info().
		Dur("refresh_interval", dash.RefreshInterval).
		Str("check_mode", string(a.Encryptors.Mode())).
		Msg("dashboard services initialized")
}

func (a *App) initHTTPServer(version string, metricsHandler http.Handler) {
	srv := a.Config.Server

	rituals := apihttp.NewRitualHandler(apihttp.RitualHandlerConfig{
		Dashboard:  a.Dashboard,
		Rituals:    a.Rituals,
		Payments:   a.Payments,
		Encryptors: a.Encryptors,
		Logger:     a.Logger,
	})
	router := apihttp.NewRouter(rituals, apihttp.NewHealthHandler(a.ledger), a.Logger, apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsHandler: metricsHandler,
		Version:        version,
		RequestTimeout: srv.RequestTimeout,
	})

	addr := fmt.Sprintf("%s:%d", srv.Host, srv.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  srv.ReadTimeout,
		WriteTimeout: srv.WriteTimeout,
	}
	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// Start opens the configured rituals and starts the refresh loop.
func (a *App) Start(ctx context.Context) {
	a.Dashboard.Start()
	for _, id := range a.Config.Dashboard.Rituals {
		sess, err := a.Dashboard.Open(ctx, new(big.Int).SetUint64(uint64(id)))
		if err != nil {
			a.Logger.Warn().Err(err).Uint32("ritual", id).Msg("failed to open ritual")
			continue
		}
		a.Dashboard.Pin(sess)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	a.Start(context.Background())

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
		a.holder = nil
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Stop refresh loop and event watches
	if a.Dashboard != nil {
		a.Dashboard.Stop()
	}

	if a.client != nil {
		a.client.Close()
	}

	// Close database
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// applyConfig re-applies the settings that can change without restart.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if a.Dashboard != nil {
		a.Dashboard.SetRefreshInterval(cfg.Dashboard.RefreshInterval)
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
