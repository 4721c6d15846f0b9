package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/bft-labs/zonecast/internal/adapters/actor/browser"
	"github.com/bft-labs/zonecast/internal/adapters/actor/fake"
	"github.com/bft-labs/zonecast/internal/adapters/actor/webhook"
	"github.com/bft-labs/zonecast/internal/adapters/events/rabbitmq"
	"github.com/bft-labs/zonecast/internal/adapters/transport/httpapi"
	"github.com/bft-labs/zonecast/internal/app"
	"github.com/bft-labs/zonecast/internal/cliconfig"
	"github.com/bft-labs/zonecast/internal/dispatch"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/internal/session"
	"github.com/bft-labs/zonecast/pkg/log"
)

func newServeCommand(cfgPath *string) *cobra.Command {
	cfg := cliconfig.DefaultServeConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch server in front of the automation session",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)

			fc, err := loadFileConfig(*cfgPath)
			if err != nil {
				return err
			}
			if fc != nil {
				if err := cliconfig.ApplyServeFileConfig(&cfg, *fc, changed); err != nil {
					return err
				}
			}
			// ZONECAST_* override the file; changed flags override both.
			if err := cliconfig.ApplyServeEnvConfig(&cfg, changed); err != nil {
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

			return runServe(cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console, json)")
	f.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	f.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "bearer token required on /deliver and /stop (optional)")

	f.StringVar(&cfg.Actor, "actor", cfg.Actor, "automation backend (browser, webhook, fake)")
	f.StringVar(&cfg.LoginURL, "login-url", cfg.LoginURL, "browser actor login page")
	f.StringVar(&cfg.TargetURL, "target-url", cfg.TargetURL, "browser actor page to post on")
	f.StringVar(&cfg.Username, "username", cfg.Username, "browser actor account name")
	f.StringVar(&cfg.Password, "password", cfg.Password, "browser actor password (prefer ZONECAST_ACTOR_PASSWORD)")
	f.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run the browser without a window")
	f.StringVar(&cfg.WebhookURL, "webhook-url", cfg.WebhookURL, "webhook actor endpoint")
	f.StringVar(&cfg.WebhookToken, "webhook-token", cfg.WebhookToken, "webhook actor bearer token")

	f.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "post attempts per delivery")
	f.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "pause between post attempts")
	f.StringVar(&cfg.MessageFormat, "message-format", cfg.MessageFormat, "posted text; %s is replaced by the payload")
	f.StringSliceVar(&cfg.InvalidationPatterns, "invalidation-patterns", cfg.InvalidationPatterns, "error substrings that mean the session is broken")
	f.IntVar(&cfg.DedupSize, "dedup-size", cfg.DedupSize, "number of delivered record ids remembered")

	f.DurationVar(&cfg.InitTimeout, "init-timeout", cfg.InitTimeout, "bound on one session initialization")
	f.DurationVar(&cfg.PostTimeout, "post-timeout", cfg.PostTimeout, "bound on one post attempt")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "bound on session teardown and HTTP drain")
	f.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often a broken session is re-initialized")

	f.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "deliveries per client per window (0 disables)")
	f.DurationVar(&cfg.RateWindow, "rate-window", cfg.RateWindow, "rate limit window")
	f.StringSliceVar(&cfg.TrustedProxies, "trusted-proxies", cfg.TrustedProxies, "proxy IPs or CIDRs whose X-Forwarded-For is trusted (default: none)")
	f.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "RabbitMQ URL for event fanout (optional)")
	f.StringVar(&cfg.AMQPExchange, "amqp-exchange", cfg.AMQPExchange, "RabbitMQ fanout exchange")

	return cmd
}

func runServe(cfg cliconfig.ServeConfig, logger *log.ZerologAdapter) error {
	actor, err := newActor(cfg, logger.With("actor"))
	if err != nil {
		return err
	}

	dcfg := dispatch.Config{
		MaxAttempts:          cfg.MaxAttempts,
		RetryDelay:           cfg.RetryDelay,
		MessageFormat:        cfg.MessageFormat,
		InvalidationPatterns: cfg.InvalidationPatterns,
		DedupSize:            cfg.DedupSize,
	}
	opts := []app.ServiceOption{app.WithServiceLogger(logger)}
	var pub *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		pub, err = rabbitmq.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger.With("events"))
		if err != nil {
			return err
		}
		opts = append(opts, app.WithEventPublisher(pub))
	}
	// Run closes the publisher; before that it is ours.
	closePub := func() {
		if pub != nil {
			_ = pub.Close()
		}
	}

	svc, err := app.NewService(app.ServiceConfig{
		HTTP: httpapi.Config{
			ListenAddr:     cfg.ListenAddr,
			AuthToken:      cfg.AuthToken,
			RateLimit:      cfg.RateLimit,
			RateWindow:     cfg.RateWindow,
			TrustedProxies: cfg.TrustedProxies,
		},
		Session: session.Config{
			InitTimeout:     cfg.InitTimeout,
			PostTimeout:     cfg.PostTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
			SweepInterval:   cfg.SweepInterval,
		},
		Dispatch:        dcfg,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, actor, opts...)
	if err != nil {
		closePub()
		return err
	}

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		closePub()
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()
	return svc.Run(ctx, l)
}

func newActor(cfg cliconfig.ServeConfig, logger log.Logger) (ports.Actor, error) {
	switch cfg.Actor {
	case "browser":
		return browser.New(browser.Config{
			LoginURL:  cfg.LoginURL,
			TargetURL: cfg.TargetURL,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Headless:  cfg.Headless,
		}, logger)
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.WebhookURL,
			Token:   cfg.WebhookToken,
			Timeout: cfg.PostTimeout,
		}, nil, logger)
	default:
		return fake.New(logger), nil
	}
}
