package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hovavo/pxt-states/internal/api"
	"github.com/hovavo/pxt-states/internal/bridge"
	"github.com/hovavo/pxt-states/internal/definition"
	"github.com/hovavo/pxt-states/internal/history"
	"github.com/hovavo/pxt-states/internal/infrastructure/config"
	"github.com/hovavo/pxt-states/internal/infrastructure/database"
	"github.com/hovavo/pxt-states/internal/infrastructure/influxdb"
	"github.com/hovavo/pxt-states/internal/infrastructure/logging"
	"github.com/hovavo/pxt-states/internal/infrastructure/mqtt"
	"github.com/hovavo/pxt-states/internal/panel"
	"github.com/hovavo/pxt-states/internal/scheduler"
	"github.com/hovavo/pxt-states/internal/states"
	"github.com/hovavo/pxt-states/internal/telemetry"
	"github.com/hovavo/pxt-states/migrations"
)

// loopDrainTimeout bounds how long shutdown waits for loop handlers to
// notice cancellation.
const loopDrainTimeout = 5 * time.Second

// runServe is the daemon, separated from the command for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
//
// Startup order: config, logging, engine, history, MQTT, InfluxDB,
// telemetry, definitions, bridge, API, then the definition start states.
// Shutdown runs in reverse through deferred calls.
func runServe(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting statesd", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// Load definitions before connecting anything so a bad file fails fast.
	var defs *definition.File
	if cfg.Runtime.DefinitionsFile != "" {
		defs, err = definition.Load(cfg.Runtime.DefinitionsFile)
		if err != nil {
			return fmt.Errorf("loading definitions: %w", err)
		}
		log.Info("definitions loaded", "path", cfg.Runtime.DefinitionsFile, "machines", len(defs.Machines))
	}

	sched := scheduler.New(cfg.GetLoopInterval())
	registry := states.New(
		states.WithScheduler(sched),
		states.WithLineWriter(log),
		states.WithLogger(log),
		states.WithContext(ctx),
	)
	registry.SetDebug(cfg.Runtime.Debug)
	defer stopEngine(registry, sched, log)

	checks := make(map[string]api.HealthChecker)
	pipeline := telemetry.NewPipeline(cfg.Runtime.TelemetryBuffer)
	pipeline.SetLogger(log)

	historyRepo, closeDB, err := openHistory(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeDB()
	if historyRepo != nil {
		pipeline.AddSink(historyRepo)
		pruner := history.NewPruner(historyRepo, cfg.GetRetention(), cfg.GetPruneInterval(), log)
		go pruner.Run(ctx)
	}

	var mqttClient *mqtt.Client
	var stateBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		stateBridge, err = bridge.New(bridge.Options{
			Client:   mqttClient,
			Registry: registry,
			Topics:   mqttClient.Topics(),
			QoS:      byte(cfg.MQTT.QoS),
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		pipeline.AddSink(stateBridge)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			stateBridge.Reconnected()
		})
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
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
		checks["influxdb"] = influxClient
		pipeline.AddSink(telemetry.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log)
	pipeline.AddSink(telemetry.NewBroadcastSink(hub))

	// Sinks keep working through shutdown so the queue can drain.
	pipeline.Start(context.WithoutCancel(ctx))
	defer pipeline.Close()
	registry.AddListener(pipeline)

	var binder *definition.Binder
	if defs != nil {
		opts := definition.BinderOptions{Logger: log}
		if mqttClient != nil {
			opts.Publisher = mqttClient
		}
		binder = definition.NewBinder(registry, opts)
		binder.Apply(defs)
	}

	if stateBridge != nil {
		if err := stateBridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer stateBridge.Stop()
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Security:  cfg.Security,
			Logger:    log,
			Registry:  registry,
			Checks:    checks,
			Telemetry: pipeline,
			Hub:       hub,
			Version:   version,
		}
		if historyRepo != nil {
			deps.History = historyRepo
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if stateBridge != nil {
			deps.Bridge = stateBridge
		}
		if cfg.API.Panel.Enabled {
			deps.Panel = panel.Handler(cfg.API.Panel.Dir)
		}

		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = srv.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled: security.jwt.secret is empty")
		}
	} else {
		log.Info("API disabled")
	}

	if binder != nil {
		binder.Start(ctx, defs)
	}

	log.Info("statesd started", "machines", len(registry.Machines()))

	<-ctx.Done()
	log.Info("shutdown signal received, stopping services")
	return nil
}

// openHistory opens and migrates the database when history is enabled. The
// returned close function is always safe to call.
func openHistory(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (*history.Repository, func(), error) {
	if !cfg.History.Enabled {
		log.Info("transition history disabled")
		return nil, func() {}, nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}

	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	checks["database"] = db
	return history.NewRepository(db.DB), closeDB, nil
}

// stopEngine cancels every activation and waits for loop tasks to return.
func stopEngine(registry *states.Registry, sched *scheduler.Cooperative, log *logging.Logger) {
	registry.Close()

	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("state engine stopped")
	case <-time.After(loopDrainTimeout):
		log.Warn("loop handlers still running after shutdown timeout")
	}
}
