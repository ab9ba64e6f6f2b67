// bloxd runs a blox controller: a set of typed objects driven by a single
// control loop, configured over a framed byte stream and persisted across
// restarts.
//
// The command stream is served over TCP and, when enabled, over MQTT. A
// read-only diagnostics API exposes live and stored objects and the command
// audit trail.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/nerrad567/blox-core/migrations"

	"github.com/nerrad567/blox-core/internal/api"
	"github.com/nerrad567/blox-core/internal/audit"
	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/infrastructure/config"
	"github.com/nerrad567/blox-core/internal/infrastructure/database"
	"github.com/nerrad567/blox-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/blox-core/internal/infrastructure/logging"
	"github.com/nerrad567/blox-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/blox-core/internal/storage"
	"github.com/nerrad567/blox-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/bloxd.yaml"

	// auditRetention is how long command log entries are kept. Older
	// entries are pruned at startup.
	auditRetention = 30 * 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability.
//
// Components are closed in reverse order of start: transports first so no
// new frames arrive, then the control loop, then the audit recorder drains,
// and the stores close last.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting bloxd",
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
	log.Info("configuration loaded", "path", configPath, "controller", cfg.Controller.ID)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store, err := storage.Open(cfg.Storage, db.DB)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing object store", "error", closeErr)
		}
	}()
	log.Info("object store opened", "driver", cfg.Storage.Driver)

	b, err := newBox(cfg, store, log)
	if err != nil {
		return err
	}
	stats, err := b.LoadFromStorage(ctx)
	if err != nil {
		return fmt.Errorf("loading objects: %w", err)
	}
	log.Info("objects restored", "loaded", stats.Loaded, "failed", stats.Failed)

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	if pruned, pruneErr := auditRepo.Prune(ctx, time.Now().Add(-auditRetention)); pruneErr != nil {
		log.Warn("pruning command log failed", "error", pruneErr)
	} else if pruned > 0 {
		log.Info("command log pruned", "entries", pruned)
	}
	recorder := audit.NewRecorder(auditRepo, audit.DefaultQueueSize)
	recorder.SetLogger(log.Component("audit"))
	stopRecorder := runInBackground(func(ctx context.Context) error {
		recorder.Run(ctx)
		return nil
	})
	defer func() {
		stopRecorder()
		if n := recorder.Dropped(); n > 0 {
			log.Warn("command log entries dropped", "count", n)
		}
	}()

	// Runtime metrics (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Controller.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Hooks are set before the loop owns the box.
	b.SetCommandHook(commandHook(recorder, influxClient))
	loop := box.NewLoop(b, box.LoopConfig{
		Interval:  cfg.TickInterval(),
		QueueSize: cfg.Scheduler.QueueSize,
	})
	if influxClient != nil {
		loop.SetOnUpdate(passSampler(b, influxClient, cfg.InfluxDB.PassSampleEvery))
	}
	stopLoop := runInBackground(loop.Run)
	defer func() {
		stopLoop()
		log.Info("control loop stopped")
	}()
	log.Info("control loop running", "tick", cfg.TickInterval())

	checks := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	// TCP command stream
	var sessions api.SessionCounter
	if cfg.Transport.Enabled {
		server := transport.NewServer(transport.ServerConfig{
			Addr:           net.JoinHostPort(cfg.Transport.Host, strconv.Itoa(cfg.Transport.Port)),
			MaxFrame:       cfg.Transport.MaxFrame,
			IdleTimeout:    cfg.IdleTimeout(),
			MaxConnections: cfg.Transport.MaxConnections,
		}, loop)
		server.SetLogger(log.Component("transport"))
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting TCP transport: %w", startErr)
		}
		defer server.Close() //nolint:errcheck // always nil
		sessions = server
	} else {
		log.Info("TCP transport disabled")
	}

	// MQTT command bridge
	if cfg.MQTT.Enabled {
		mqttClient, bridge, startErr := startMQTT(ctx, cfg, loop, log)
		if startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer bridge.Close() //nolint:errcheck // always nil
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Diagnostics API
	if cfg.Diagnostics.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:       cfg.Diagnostics,
			Logger:       log.Component("api"),
			Loop:         loop,
			Audit:        auditRepo,
			Checks:       checks,
			Sessions:     sessions,
			Version:      version,
			ControllerID: cfg.Controller.ID,
		})
		if apiErr != nil {
			return fmt.Errorf("creating diagnostics API: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting diagnostics API: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing diagnostics API", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns BLOXD_CONFIG, or the default path.
func getConfigPath() string {
	if path := os.Getenv("BLOXD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func startMQTT(ctx context.Context, cfg *config.Config, loop *box.Loop, log *logging.Logger) (*mqtt.Client, *transport.Bridge, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridge := transport.NewBridge(transport.BridgeConfig{
		Topics:          client.Topics(),
		QoS:             client.QoS(),
		MaxFrame:        cfg.Transport.MaxFrame,
		PublishInterval: cfg.PublishInterval(),
	}, client, loop, loop)
	bridge.SetLogger(log.Component("mqtt-bridge"))
	if err := bridge.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	return client, bridge, nil
}

// healthCheck runs every check once and reports the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
