// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file when one exists, otherwise from
// MODELFORM_* environment variables.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	httpadapter "github.com/artpar/modelform/adapters/http"
	"github.com/artpar/modelform/adapters/memory"
	"github.com/artpar/modelform/adapters/metrics"
	"github.com/artpar/modelform/adapters/sqlite"
	"github.com/artpar/modelform/config"
	"github.com/artpar/modelform/core/events"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/schema"
	"github.com/artpar/modelform/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Holder     *config.Holder // nil when configured from the environment
	DB         *sqlite.DB     // nil with the memory driver
	Registry   *models.Registry
	Schemas    schema.Document
	Metrics    *metrics.Collector
	Bus        *events.Bus
	HTTPServer *http.Server

	models *httpadapter.ModelHandler
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is the YAML config file. Environment variables are used
	// when it is empty or does not exist.
	ConfigPath string

	// Registerer and Gatherer replace the default Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := SetupLogger(cfg.Logging, out)
	logger.Info().Msg("initializing modelform")

	a := &App{Logger: logger, Config: cfg}

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			holder, err := config.NewHolder(opts.ConfigPath, logger)
			if err != nil {
				return nil, err
			}
			a.Holder = holder
			a.Config = holder.Get()
		}
	}

	doc, err := schema.Load(a.Config.Schemas.Paths...)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate schemas: %w", err)
	}
	a.Schemas = doc

	if err := a.initRegistry(context.Background()); err != nil {
		a.closeDB()
		return nil, fmt.Errorf("init models: %w", err)
	}

	if a.Config.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		a.Metrics = metrics.NewWithRegistry(reg)
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.Bus = events.NewBus(logger)
	a.Bus.Subscribe("*", func(ctx context.Context, e events.Event) error {
		ev := logger.Debug().
			Str("event", e.Name).
			Str("model", e.Model).
			Str("action", e.Action).
			Str("invocation", e.Invocation)
		if e.Err != nil {
			ev = ev.Err(e.Err)
		}
		ev.Msg("action settled")
		return nil
	})

	a.initHTTPServer(opts.Gatherer)
	a.watchConfig()

	return a, nil
}

func (a *App) initRegistry(ctx context.Context) error {
	cfg := a.Config.Database

	if cfg.Driver == "sqlite" {
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return err
		}
		a.DB = db
	}

	a.Registry = models.New(a.Logger)
	for _, name := range a.Schemas.Names() {
		s := a.Schemas[name]

		var res *models.Resource
		if a.DB != nil {
			r, err := a.DB.Resource(ctx, name, s)
			if err != nil {
				return fmt.Errorf("model %s: %w", name, err)
			}
			res = r
		} else {
			res = memory.Resource(s)
		}
		a.Registry.Add(name, res)

		a.Logger.Debug().
			Str("model", name).
			Str("driver", cfg.Driver).
			Int("attributes", len(s.Attributes)).
			Msg("model registered")
	}
	a.Registry.Schemas(map[string]schema.Schema(a.Schemas))

	a.Logger.Info().Int("models", len(a.Schemas)).Msg("models loaded")
	return nil
}

func (a *App) initHTTPServer(gatherer prometheus.Gatherer) {
	cfg := a.Config

	// A nil *Collector must not become a non-nil interface
	var actionMetrics ports.ActionMetrics
	if a.Metrics != nil {
		actionMetrics = a.Metrics
	}

	a.models = httpadapter.NewModelHandler(a.Registry, a.Logger, actionMetrics, a.Bus)
	a.models.SetFormSettings(formSettings(cfg.Forms))

	var pinger httpadapter.Pinger
	if a.DB != nil {
		pinger = a.DB
	}
	health := httpadapter.NewHealthHandler(pinger)

	router := httpadapter.NewRouter(a.models, health, a.Logger, httpadapter.RouterConfig{
		Metrics:     a.Metrics,
		Gatherer:    gatherer,
		MetricsPath: cfg.Metrics.Path,
		Timeout:     cfg.Server.WriteTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func (a *App) watchConfig() {
	if a.Holder == nil {
		return
	}

	a.Holder.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		a.models.SetFormSettings(formSettings(cfg.Forms))
	})
	a.Holder.OnReload(func(err error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(err, time.Now())
		}
	})
}

// Handler returns the application's HTTP handler.
func (a *App) Handler() http.Handler {
	return a.HTTPServer.Handler
}

// Run starts the HTTP server and blocks until shutdown.
// With hotReload the config file is watched for changes.
func (a *App) Run(hotReload bool) error {
	if a.Holder != nil {
		if hotReload {
			if err := a.Holder.WatchFile(); err != nil {
				a.Logger.Warn().Err(err).Msg("config file watch disabled")
			}
		}
		a.Holder.WatchSignals()
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
	defer signal.Stop(quit)

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

	if a.Holder != nil {
		a.Holder.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.closeDB()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeDB() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("database close error")
	}
	a.DB = nil
}

// SetupLogger creates the application logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(w).With().Timestamp().Logger()
}

func formSettings(cfg config.FormsConfig) httpadapter.FormSettings {
	return httpadapter.FormSettings{
		AllowConcurrent: cfg.AllowConcurrent,
		ActionTimeout:   cfg.ActionTimeout,
	}
}
