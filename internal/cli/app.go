package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/harun/colloquy/internal/config"
	"github.com/harun/colloquy/internal/logger"
	"github.com/harun/colloquy/internal/observability"
	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/harun/colloquy/pkg/store"
	"github.com/harun/colloquy/pkg/transcript"
	"github.com/rs/zerolog"
)

const serviceName = "colloquy"

// app holds what a command needs. Resources open lazily and close in reverse.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	closer []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	l, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: l}
	a.closer = append(a.closer, l.Close)
	return a, nil
}

func (a *app) logger() *zerolog.Logger {
	return a.log.Zerolog()
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(store.Config{Path: a.cfg.Store.Path, Logger: a.logger()})
	if err != nil {
		return nil, err
	}
	a.closer = append(a.closer, st.Close)
	return st, nil
}

func (a *app) openTranscripts() (*transcript.Store, error) {
	return transcript.New(a.cfg.Transcripts.Dir)
}

// openLibrary returns nil when the blueprint directory does not exist.
func (a *app) openLibrary() (*blueprint.Library, error) {
	if _, err := os.Stat(a.cfg.Blueprints.Dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	lib, err := blueprint.OpenLibrary(blueprint.LibraryConfig{
		Dir:      a.cfg.Blueprints.Dir,
		Logger:   a.logger(),
		OnChange: func(string) { observability.RecordBlueprintReload() },
	})
	if err != nil {
		return nil, err
	}
	a.closer = append(a.closer, lib.Close)
	if a.cfg.Blueprints.Watch {
		if err := lib.Watch(); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// startTelemetry enables the tracer provider, the audit log and the metrics
// endpoint as configured.
func (a *app) startTelemetry() error {
	tel := a.cfg.Telemetry
	if tel.Tracing {
		if err := tracing.InitOpenTelemetry(serviceName, tel.SampleRatio); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		a.closer = append(a.closer, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracing.ShutdownOpenTelemetry(ctx)
		})
	}

	if tel.AuditLog != "" {
		if err := observability.InitAuditLogger(tel.AuditLog); err != nil {
			return fmt.Errorf("failed to init audit log: %w", err)
		}
		a.closer = append(a.closer, func() error {
			if audit := observability.GetAuditLogger(); audit != nil {
				return audit.Close()
			}
			return nil
		})
	}

	if tel.MetricsAddr != "" {
		observability.EnsureRegistered()
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		srv := &http.Server{Addr: tel.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger().Error().Err(err).Str("addr", tel.MetricsAddr).Msg("Metrics server failed")
			}
		}()
		a.logger().Info().Str("addr", tel.MetricsAddr).Msg("Serving metrics")
		a.closer = append(a.closer, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
