// Growgate Core - Multi-Tenant Grow Room Gateway
//
// This is the main entry point for the Growgate Core application.
// Growgate mediates between tenant browsers and each tenant's
// home-automation hub: it maintains one resilient hub session per
// active tenant, fans state changes out to browser WebSockets, and
// executes authorised device commands with a full audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/verdantio/growgate-core/migrations"

	"github.com/verdantio/growgate-core/internal/api"
	"github.com/verdantio/growgate-core/internal/audit"
	"github.com/verdantio/growgate-core/internal/gateway"
	"github.com/verdantio/growgate-core/internal/infrastructure/config"
	"github.com/verdantio/growgate-core/internal/infrastructure/database"
	"github.com/verdantio/growgate-core/internal/infrastructure/influxdb"
	"github.com/verdantio/growgate-core/internal/infrastructure/logging"
	"github.com/verdantio/growgate-core/internal/infrastructure/mqtt"
	"github.com/verdantio/growgate-core/internal/resilience"
	"github.com/verdantio/growgate-core/internal/tenant"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Growgate Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Tenant and audit stores
	credentialStore := tenant.NewSQLiteCredentialStore(db.DB)
	assignmentStore := tenant.NewSQLiteAssignmentStore(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional state mirror)
	var publisher gateway.StatePublisher
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		publisher = mqtt.NewStatePublisher(mqttClient)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry)
	var telemetry gateway.MetricWriter
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Resilience controller protecting hub traffic
	controller := resilience.New(resilience.Options{
		Logger: log.With("component", "resilience"),
	})
	defer controller.Stop()

	restCfg, err := resilienceConfig(cfg.Resilience.HubREST)
	if err != nil {
		return fmt.Errorf("hub REST resilience config: %w", err)
	}
	controller.Register(gateway.ServiceHubREST, restCfg)

	wsCfg, err := resilienceConfig(cfg.Resilience.HubWebSocket)
	if err != nil {
		return fmt.Errorf("hub WebSocket resilience config: %w", err)
	}
	controller.Register(gateway.ServiceHubWebSocket, wsCfg)

	controller.StartMonitor(ctx)
	log.Info("resilience controller started",
		"services", []string{gateway.ServiceHubREST, gateway.ServiceHubWebSocket},
	)

	// Device gateway
	gw, err := gateway.New(gateway.Options{
		Credentials: credentialStore,
		Assignments: assignmentStore,
		Audit:       auditRepo,
		Resilience:  controller,
		HubFactory:  gateway.NewHubFactory(cfg.Hub, controller, log.With("component", "hub")),
		Logger:      log.With("component", "gateway"),
		Publisher:   publisher,
		Telemetry:   telemetry,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer gw.Stop()
	gw.StartSweep(ctx, time.Minute)

	// When the hub-websocket service stays failing, rebuild the affected
	// tenants' sessions in place.
	controller.SetRecoveryCallback(gateway.ServiceHubWebSocket, gw.RecoverHubSessions)

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.With("component", "api"),
		Gateway:    gw,
		Resilience: controller,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify infrastructure is healthy before declaring readiness
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: database: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal. Deferred Close() calls run in reverse
	// order: API server, gateway, resilience, InfluxDB, MQTT, database.
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Growgate Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GROWGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GROWGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// resilienceConfig converts one service's YAML settings into the
// controller's policy types.
func resilienceConfig(sc config.ServiceConfig) (resilience.Config, error) {
	strategy, err := resilience.ParseStrategy(sc.Retry.Strategy)
	if err != nil {
		return resilience.Config{}, err
	}
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:     sc.Retry.MaxAttempts,
			BaseDelay:       secondsf(sc.Retry.BaseDelay),
			MaxDelay:        secondsf(sc.Retry.MaxDelay),
			ExponentialBase: sc.Retry.ExponentialBase,
			Jitter:          sc.Retry.Jitter,
			Strategy:        strategy,
		},
		Breaker: resilience.BreakerPolicy{
			FailureThreshold:    sc.Breaker.FailureThreshold,
			RecoveryTimeout:     seconds(sc.Breaker.RecoveryTimeout),
			SuccessThreshold:    sc.Breaker.SuccessThreshold,
			HalfOpenMaxAttempts: sc.Breaker.HalfOpenMaxAttempts,
		},
		Health: resilience.HealthPolicy{
			Enabled:           sc.Health.Enabled,
			Interval:          seconds(sc.Health.Interval),
			Timeout:           seconds(sc.Health.Timeout),
			FailureThreshold:  sc.Health.FailureThreshold,
			RecoveryThreshold: sc.Health.RecoveryThreshold,
		},
	}, nil
}

func seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func secondsf(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
