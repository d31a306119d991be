package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"home-control/config"
	"home-control/internal/application"
	"home-control/internal/domain"
	"home-control/internal/infra/device"
	"home-control/internal/infra/firmware"
	"home-control/internal/infra/httpapi"
	"home-control/internal/infra/metrics"
	"home-control/internal/infra/mqtt"
	"home-control/internal/infra/pushover"
	"home-control/internal/infra/session"
	"home-control/internal/infra/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	demo := flag.Bool("demo", false, "seed a demo user with two lights when the store is empty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	logger := setupLogger(cfg.Log, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *demo, level, logger); err != nil {
		logger.Error("hub stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config, demo bool, level *slog.LevelVar, logger *slog.Logger) error {
	baseLevel := level.Level()
	if cfg.Settings.Debug {
		level.Set(slog.LevelDebug)
	}
	globals := application.NewGlobals(cfg.Settings.SiteName, cfg.Settings.Debug,
		application.WithDebugHook(func(debug bool) {
			if debug {
				level.Set(slog.LevelDebug)
			} else {
				level.Set(baseLevel)
			}
			logger.Info("debug mode changed", "debug", debug)
		}),
	)
	fallback := config.Duration(logger, "monitor.fallback_interval", cfg.Monitor.FallbackInterval, application.DefaultFallbackInterval)
	globals.SetFallbackInterval(int(fallback / time.Second))

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	if demo {
		if err := seedDemo(ctx, st); err != nil {
			return err
		}
	}

	var hubMetrics application.Metrics = application.NoopMetrics{}
	var collector *metrics.Collector
	listeners := []application.StatusListener{}
	if *cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		hubMetrics = collector
		listeners = append(listeners, collector)
	}

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.Connect(ctx, mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			logger.Warn("mqtt disabled", "error", err)
		} else {
			defer publisher.Close()
			listeners = append(listeners, publisher)
		}
	}

	var notifier application.Notifier = &application.NoopNotifier{}
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey, cfg.Settings.SiteName)
	}
	listeners = append(listeners, application.NewNotifyOnChange(notifier, logger))

	deviceClient := device.NewClient(config.Duration(logger, "device.timeout", cfg.Device.Timeout, device.DefaultTimeout))
	status := application.NewStatusTable()
	sessions := session.NewTracker(config.Duration(logger, "monitor.session_ttl", cfg.Monitor.SessionTTL, session.DefaultTTL))

	stage := firmware.NewFileStage(cfg.Firmware.StagingDir, int64(cfg.Firmware.MaxSizeMB)<<20, firmware.WithLogger(logger))
	if err := stage.Start(ctx); err != nil {
		return err
	}

	globalAttrs := application.GlobalAttributes(globals)
	if skipped := application.AddValueAttributes(globalAttrs, cfg.Settings.Values); len(skipped) > 0 {
		logger.Warn("ignoring settings values that clash with built-in attributes", "names", skipped)
	}

	deps := httpapi.Deps{
		Control: application.NewControlService(st, st, deviceClient, hubMetrics, logger),
		Lights:  st,
		Status:  status,
		Attributes: application.NewAttributeHandler(
			globalAttrs,
			application.UserAttributes(),
			st, hubMetrics, logger,
		),
		Firmware: application.NewFirmwarePipeline(stage, deviceClient, st, hubMetrics, logger),
		Sessions: sessions,
	}
	if collector != nil {
		deps.Metrics = collector.Handler()
	}

	server, err := httpapi.NewServer(httpapi.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration(logger, "server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(logger, "server.write_timeout", cfg.Server.WriteTimeout, 60*time.Second),
		MetricsPath:  cfg.Metrics.Path,
		RateLimit:    cfg.Server.RateLimit,
		MaxUpload:    int64(cfg.Firmware.MaxSizeMB) << 20,

		TrustedProxies: cfg.Server.TrustedProxies,
	}, deps, logger)
	if err != nil {
		return err
	}

	logger.Info("starting home control hub",
		"site", globals.SiteName(),
		"addr", cfg.Server.Addr,
		"monitor", *cfg.Monitor.Enabled,
		"metrics", collector != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	if *cfg.Monitor.Enabled {
		monitor := application.NewMonitor(st, sessions, deviceClient, status, globals, logger,
			application.WithStatusListeners(listeners...),
			application.WithMonitorMetrics(hubMetrics),
		)
		g.Go(func() error {
			if err := monitor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func seedDemo(ctx context.Context, st *store.Store) error {
	ids, err := st.UserIDs(ctx)
	if err != nil || len(ids) > 0 {
		return err
	}
	if err := st.AddUser(1, "demo", true); err != nil {
		return err
	}
	for _, l := range []struct{ room, name string }{{"Living Room", "Ceiling"}, {"Kitchen", "Counter"}} {
		if err := st.AddLight(1, l.room, domain.Light{Name: l.name, State: domain.LightOff}); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	switch cfg.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
