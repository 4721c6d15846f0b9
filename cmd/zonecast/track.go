package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bft-labs/zonecast/internal/adapters/location/mqtt"
	"github.com/bft-labs/zonecast/internal/adapters/location/replay"
	"github.com/bft-labs/zonecast/internal/adapters/transport/client"
	"github.com/bft-labs/zonecast/internal/app"
	"github.com/bft-labs/zonecast/internal/catalog"
	"github.com/bft-labs/zonecast/internal/cliconfig"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/internal/trigger"
	"github.com/bft-labs/zonecast/pkg/log"
)

func newTrackCommand(cfgPath *string) *cobra.Command {
	cfg := cliconfig.DefaultTrackConfig()

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Evaluate location fixes against the zone catalog and dispatch triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)

			fc, err := loadFileConfig(*cfgPath)
			if err != nil {
				return err
			}
			if fc != nil {
				if err := cliconfig.ApplyTrackFileConfig(&cfg, *fc, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyTrackEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			zl := logger.Zerolog()
			zl.Info().Interface("config", cfg.Masked()).Msg("configuration")

			return runTrack(cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console, json)")
	f.StringVar(&cfg.Catalog, "catalog", cfg.Catalog, "zone catalog file (.yaml or .toml)")
	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "restart tracking when the catalog file changes")

	f.StringVar(&cfg.Provider, "provider", cfg.Provider, "location source (replay, mqtt)")
	f.StringVar(&cfg.ReplayFile, "replay-file", cfg.ReplayFile, "JSON-lines file of location fixes")
	f.Float64Var(&cfg.ReplaySpeed, "replay-speed", cfg.ReplaySpeed, "replay speed multiplier (0 = no pacing)")
	f.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "MQTT broker URL")
	f.StringVar(&cfg.MQTTTopic, "mqtt-topic", cfg.MQTTTopic, "MQTT topic carrying location fixes")
	f.StringVar(&cfg.MQTTClientID, "mqtt-client-id", cfg.MQTTClientID, "MQTT client id")
	f.StringVar(&cfg.MQTTUsername, "mqtt-username", cfg.MQTTUsername, "MQTT username")
	f.StringVar(&cfg.MQTTPassword, "mqtt-password", cfg.MQTTPassword, "MQTT password")

	f.StringVar(&cfg.Accuracy, "accuracy", cfg.Accuracy, "accuracy hint passed to the provider")
	f.DurationVar(&cfg.MinInterval, "min-interval", cfg.MinInterval, "minimum time between accepted fixes")
	f.Float64Var(&cfg.MinDistanceMeters, "min-distance", cfg.MinDistanceMeters, "minimum movement between accepted fixes, meters")
	f.Float64Var(&cfg.MaxErrorMeters, "max-error", cfg.MaxErrorMeters, "drop fixes less accurate than this, meters (0 disables)")

	f.StringVar(&cfg.Policy, "policy", cfg.Policy, "trigger policy (visit-once, interval)")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "minimum time between fires under the interval policy")
	f.StringVar(&cfg.Selection, "selection", cfg.Selection, "payload candidate selection (first, random)")
	f.StringVar(&cfg.PayloadMode, "payload-mode", cfg.PayloadMode, "payload content (zone, coordinates)")
	f.BoolVar(&cfg.ForcePost, "force-post", cfg.ForcePost, "ignore the interval window")

	f.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "zonecast server base URL")
	f.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "bearer token for the server")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per delivery")
	f.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "pending deliveries before new triggers are dropped")

	return cmd
}

func runTrack(cfg cliconfig.TrackConfig, logger *log.ZerologAdapter) error {
	zones, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg, logger.With("location"))
	if err != nil {
		return err
	}

	sink, err := client.New(client.Config{
		ServerURL: cfg.ServerURL,
		AuthToken: cfg.AuthToken,
		Timeout:   cfg.HTTPTimeout,
	}, nil, logger.With("transport"))
	if err != nil {
		return err
	}

	tracker, err := app.NewTracker(app.TrackerConfig{
		Subscribe: ports.SubscribeConfig{
			Accuracy:          cfg.Accuracy,
			MinInterval:       cfg.MinInterval,
			MinDistanceMeters: cfg.MinDistanceMeters,
			MaxErrorMeters:    cfg.MaxErrorMeters,
		},
		Gate: trigger.Config{
			Policy:      trigger.Policy(cfg.Policy),
			Interval:    cfg.Interval,
			Selection:   trigger.Selection(cfg.Selection),
			PayloadMode: trigger.PayloadMode(cfg.PayloadMode),
			ForcePost:   cfg.ForcePost,
		},
		QueueSize: cfg.QueueSize,
	}, zones, provider, sink, app.WithTrackerLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if st, err := sink.Status(ctx); err != nil {
		logger.Warn("dispatch server not reachable yet", log.String("url", cfg.ServerURL), log.Err(err))
	} else {
		logger.Info("dispatch server reachable", log.Bool("ready", st.Ready), log.String("state", st.State))
	}

	if cfg.Watch {
		w := catalog.NewWatcher(cfg.Catalog, catalog.WatcherConfig{}, logger.With("catalog"), tracker.Reload)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("catalog watcher stopped", log.Err(err))
			}
		}()
	}

	err = tracker.Run(ctx)

	snap := tracker.Snapshot()
	logger.Info("tracking finished",
		log.Int("triggers", snap.Triggers),
		log.Int("delivered", snap.Deliveries),
		log.Int("failed", snap.Failures),
		log.Int("dropped", snap.Dropped),
	)
	if near := snap.NearestZones(); len(near) > 0 {
		logger.Info("closest zone at last fix",
			log.String("zone", near[0].Name),
			log.Float64("distance_m", near[0].Distance),
			log.Float64("bearing_deg", near[0].Bearing),
			log.Bool("inside", near[0].Inside),
		)
	}
	fmt.Println(strings.Join(tracker.StatusLog(), "\n"))

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newProvider(cfg cliconfig.TrackConfig, logger log.Logger) (ports.LocationProvider, error) {
	switch cfg.Provider {
	case "replay":
		return replay.New(replay.Config{Path: cfg.ReplayFile, Speed: cfg.ReplaySpeed}, logger), nil
	case "mqtt":
		return mqtt.New(mqtt.Config{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
