// newsdesk - multi-user access control for a personal news desk.
//
// On start newsdesk opens its SQLite store, upgrades a single-user store to
// the account model if needed, and asks for a login on the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/newsdesk/migrations"

	"github.com/nerrad567/newsdesk/internal/api"
	"github.com/nerrad567/newsdesk/internal/audit"
	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/authevents"
	"github.com/nerrad567/newsdesk/internal/content"
	"github.com/nerrad567/newsdesk/internal/infrastructure/config"
	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
	"github.com/nerrad567/newsdesk/internal/infrastructure/influxdb"
	"github.com/nerrad567/newsdesk/internal/infrastructure/logging"
	"github.com/nerrad567/newsdesk/internal/infrastructure/mqtt"
	"github.com/nerrad567/newsdesk/internal/migration"
	"github.com/nerrad567/newsdesk/internal/terminal"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// Terminal wiring, replaced in tests.
var (
	stdin   io.Reader = os.Stdin
	stdout  io.Writer = os.Stdout
	stdinFD           = func() int { return int(os.Stdin.Fd()) }
)

const healthCheckTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting newsdesk",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(ctx, database.Config{
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

	mgr := migration.NewManager(db, migration.Config{
		BackupDir:  cfg.Migration.BackupDir,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	mgr.SetLogger(log.With("component", "migration"))
	res, err := mgr.Run(ctx)
	if err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}
	log.Info("store ready",
		"start_state", string(res.StartState),
		"migrations_applied", len(res.Applied),
	)

	svc := auth.NewService(db.DB, auth.Config{
		BcryptCost: cfg.Auth.BcryptCost,
		SessionTTL: cfg.SessionTTL(),
	})
	authLog := log.With("component", "auth")
	svc.SetLogger(authLog)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	sinks := authevents.Fanout{authevents.NewAuditSink(auditRepo, authLog)}

	mqttClient := connectMQTT(ctx, cfg, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttSink := authevents.NewMQTTSink(mqttClient, authLog)
		defer mqttSink.Close()
		sinks = append(sinks, mqttSink)
	}

	influxClient := connectInfluxDB(ctx, cfg, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sinks = append(sinks, authevents.NewMetricsSink(influxClient))
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Auth:    svc,
			Content: content.NewSQLiteRepository(db.DB),
			Audit:   auditRepo,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		sinks = append(sinks, apiServer.Hub())
	}
	svc.SetEventSink(sinks)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("health check failed", "error", err)
	}

	if n, sweepErr := svc.Sessions().SweepExpired(ctx); sweepErr != nil {
		log.Warn("initial session sweep failed", "error", sweepErr)
	} else if n > 0 {
		log.Info("expired sessions swept", "count", n)
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	if interval := cfg.SweepInterval(); interval > 0 {
		go svc.Sessions().RunSweeper(sweepCtx, interval)
	}

	if apiServer != nil {
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	prompt := terminal.NewPrompt(svc, terminal.Config{
		In:          stdin,
		Out:         stdout,
		FD:          stdinFD(),
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
	})
	outcome, err := prompt.Run(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if outcome.Status == terminal.StatusCancelled {
		log.Info("login cancelled")
		return nil
	}

	uc := outcome.Result.Context
	fmt.Fprintf(stdout, "Logged in as %s (%s). Session expires %s.\n", //nolint:errcheck // best-effort terminal output
		uc.Username, uc.Role, outcome.Result.ExpiresAt.Local().Format(time.RFC1123))
	if outcome.Result.UsingDefaultPassword {
		fmt.Fprintln(stdout, "WARNING: this account uses the default password. Change it now.") //nolint:errcheck // best-effort terminal output
	}

	if apiServer != nil {
		fmt.Fprintf(stdout, "API listening on %s. Press Ctrl+C to stop.\n", apiServer.Addr()) //nolint:errcheck // best-effort terminal output
		<-ctx.Done()
		log.Info("shutdown signal received")
	}

	log.Info("newsdesk shutdown complete")
	return nil
}

// getConfigPath returns NEWSDESK_CONFIG, or the default path if unset.
func getConfigPath() string {
	if path := os.Getenv("NEWSDESK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when MQTT is disabled or unreachable. Event
// publication is optional; the login path never depends on it.
func connectMQTT(ctx context.Context, cfg *config.Config, log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		return nil
	}
	client, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, auth events will not be published", "error", err)
		return nil
	}
	client.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client
}

// connectInfluxDB returns nil when InfluxDB is disabled or unreachable.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		return nil
	}
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, login metrics will not be recorded", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Warn("InfluxDB write failed", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return client
}

// healthCheck verifies the database and any optional connections.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
