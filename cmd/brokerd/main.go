// Command brokerd is the event broker process entrypoint: it loads
// configuration, wires the subscription store, stream engine
// collaborators, and HTTP surfaces, and serves until signaled to stop.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/adred-codev/eventbroker/internal/blacklist"
	"github.com/adred-codev/eventbroker/internal/config"
	"github.com/adred-codev/eventbroker/internal/httpapi"
	"github.com/adred-codev/eventbroker/internal/logging"
	"github.com/adred-codev/eventbroker/internal/streaming/kafkasource"
	"github.com/adred-codev/eventbroker/internal/subscription"
	"github.com/adred-codev/eventbroker/internal/telemetry"
	"github.com/adred-codev/eventbroker/internal/toggles"
	"github.com/adred-codev/eventbroker/internal/wire"
)

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	logger := logging.New("info", "console")

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Info().Msgf(format, args...)
	})); err != nil {
		logger.Warn().Err(err).Msg("failed to set GOMAXPROCS from cgroup limits")
	}
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting")

	cfg, err := config.Load(&logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open subscription store database")
	}
	defer db.Close()

	toggleLookup := toggles.Static(map[string]bool{
		toggles.HighLevelAPI:             cfg.HighLevelAPIEnabled,
		toggles.CheckOwningApplication:   cfg.CheckOwningApplication,
		toggles.SendBatchViaOutputStream: cfg.SendBatchViaOutputStream,
	})

	store := subscription.NewPGStore(db)
	svc := subscription.NewService(
		store,
		noopEventTypeRepository{},
		alwaysKnownApplications{},
		alwaysAllowedScopes{},
		noopLagSource{},
		logger,
		toggleLookup,
	)

	blacklistChecker := blacklist.NewStatic()

	brokers := splitBrokers(cfg.KafkaBrokers)
	sourceFactory := func(eventType, consumingApp string, cursors []wire.NakadiCursor) (kafkasource.Port, error) {
		return kafkasource.NewConsumer(kafkasource.Config{
			Brokers:       brokers,
			Topic:         eventType,
			ConsumerGroup: cfg.ConsumerGroup,
			Cursors:       cursors,
			Logger:        logger,
		})
	}

	defaults := httpapi.StreamDefaults{
		BatchLimit:           cfg.DefaultBatchLimit,
		BatchTimeout:         cfg.DefaultBatchTimeout,
		StreamLimit:          cfg.DefaultStreamLimit,
		StreamTimeout:        cfg.DefaultStreamTimeout,
		StreamKeepAliveLimit: cfg.DefaultStreamKeepAliveLimit,
	}

	server := httpapi.NewServer(svc, toggleLookup, blacklistChecker, sourceFactory, defaults, logger)

	httpSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses can run far longer than any fixed deadline
	}
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: telemetry.Handler(),
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("broker HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("broker HTTP server failed")
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during HTTP server shutdown")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during metrics server shutdown")
	}
}

// noopEventTypeRepository, alwaysKnownApplications, alwaysAllowedScopes,
// and noopLagSource are placeholder collaborators for external platform
// services (event type registry, application directory, scope
// authorization, and live partition lag) that this broker does not itself
// own. A production deployment replaces these with clients of the actual
// services; every event type is treated as known with no read scopes
// until that wiring lands.
type noopEventTypeRepository struct{}

func (noopEventTypeRepository) Exists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (noopEventTypeRepository) ReadScopes(ctx context.Context, name string) ([]string, error) {
	return nil, nil
}

type alwaysKnownApplications struct{}

func (alwaysKnownApplications) Exists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

type alwaysAllowedScopes struct{}

func (alwaysAllowedScopes) Check(ctx context.Context, principal string, scopes []string) error {
	return nil
}

type noopLagSource struct{}

func (noopLagSource) PartitionLag(ctx context.Context, eventType string) ([]kafkasource.PartitionLag, error) {
	return nil, nil
}
