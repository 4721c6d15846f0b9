package cliconfig

import "os"

// ApplyServeEnvConfig applies configuration from environment variables (ZONECAST_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyServeEnvConfig(cfg *ServeConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", os.Getenv("ZONECAST_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("ZONECAST_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("listen", os.Getenv("ZONECAST_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("auth-token", os.Getenv("ZONECAST_AUTH_TOKEN"), &cfg.AuthToken)
	s.setString("actor", os.Getenv("ZONECAST_ACTOR"), &cfg.Actor)
	s.setString("login-url", os.Getenv("ZONECAST_ACTOR_LOGIN_URL"), &cfg.LoginURL)
	s.setString("target-url", os.Getenv("ZONECAST_ACTOR_TARGET_URL"), &cfg.TargetURL)
	s.setString("username", os.Getenv("ZONECAST_ACTOR_USERNAME"), &cfg.Username)
	s.setString("password", os.Getenv("ZONECAST_ACTOR_PASSWORD"), &cfg.Password)
	s.setBoolFromString("headless", os.Getenv("ZONECAST_ACTOR_HEADLESS"), &cfg.Headless)
	s.setString("webhook-url", os.Getenv("ZONECAST_WEBHOOK_URL"), &cfg.WebhookURL)
	s.setString("webhook-token", os.Getenv("ZONECAST_WEBHOOK_TOKEN"), &cfg.WebhookToken)
	s.setString("message-format", os.Getenv("ZONECAST_MESSAGE_FORMAT"), &cfg.MessageFormat)
	s.setStringsFromString("invalidation-patterns", os.Getenv("ZONECAST_INVALIDATION_PATTERNS"), &cfg.InvalidationPatterns)
	s.setStringsFromString("trusted-proxies", os.Getenv("ZONECAST_TRUSTED_PROXIES"), &cfg.TrustedProxies)
	s.setString("amqp-url", os.Getenv("ZONECAST_AMQP_URL"), &cfg.AMQPURL)
	s.setString("amqp-exchange", os.Getenv("ZONECAST_AMQP_EXCHANGE"), &cfg.AMQPExchange)

	if err := s.setIntFromString("max-attempts", os.Getenv("ZONECAST_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("dedup-size", os.Getenv("ZONECAST_DEDUP_SIZE"), &cfg.DedupSize); err != nil {
		return err
	}
	if err := s.setIntFromString("rate-limit", os.Getenv("ZONECAST_RATE_LIMIT"), &cfg.RateLimit); err != nil {
		return err
	}

	if err := s.setDuration("retry-delay", os.Getenv("ZONECAST_RETRY_DELAY"), &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("init-timeout", os.Getenv("ZONECAST_INIT_TIMEOUT"), &cfg.InitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("post-timeout", os.Getenv("ZONECAST_POST_TIMEOUT"), &cfg.PostTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("ZONECAST_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("sweep-interval", os.Getenv("ZONECAST_SWEEP_INTERVAL"), &cfg.SweepInterval); err != nil {
		return err
	}
	if err := s.setDuration("rate-window", os.Getenv("ZONECAST_RATE_WINDOW"), &cfg.RateWindow); err != nil {
		return err
	}
	return nil
}

// ApplyTrackEnvConfig applies configuration from environment variables (ZONECAST_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyTrackEnvConfig(cfg *TrackConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", os.Getenv("ZONECAST_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("ZONECAST_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("catalog", os.Getenv("ZONECAST_CATALOG"), &cfg.Catalog)
	s.setBoolFromString("watch", os.Getenv("ZONECAST_WATCH"), &cfg.Watch)
	s.setString("provider", os.Getenv("ZONECAST_PROVIDER"), &cfg.Provider)
	s.setString("replay-file", os.Getenv("ZONECAST_REPLAY_FILE"), &cfg.ReplayFile)
	s.setString("mqtt-broker", os.Getenv("ZONECAST_MQTT_BROKER"), &cfg.MQTTBroker)
	s.setString("mqtt-topic", os.Getenv("ZONECAST_MQTT_TOPIC"), &cfg.MQTTTopic)
	s.setString("mqtt-client-id", os.Getenv("ZONECAST_MQTT_CLIENT_ID"), &cfg.MQTTClientID)
	s.setString("mqtt-username", os.Getenv("ZONECAST_MQTT_USERNAME"), &cfg.MQTTUsername)
	s.setString("mqtt-password", os.Getenv("ZONECAST_MQTT_PASSWORD"), &cfg.MQTTPassword)
	s.setString("accuracy", os.Getenv("ZONECAST_ACCURACY"), &cfg.Accuracy)
	s.setString("policy", os.Getenv("ZONECAST_POLICY"), &cfg.Policy)
	s.setString("selection", os.Getenv("ZONECAST_SELECTION"), &cfg.Selection)
	s.setString("payload-mode", os.Getenv("ZONECAST_PAYLOAD_MODE"), &cfg.PayloadMode)
	s.setBoolFromString("force-post", os.Getenv("ZONECAST_FORCE_POST"), &cfg.ForcePost)
	s.setString("server-url", os.Getenv("ZONECAST_SERVER_URL"), &cfg.ServerURL)
	s.setString("auth-token", os.Getenv("ZONECAST_AUTH_TOKEN"), &cfg.AuthToken)

	if err := s.setFloatFromString("replay-speed", os.Getenv("ZONECAST_REPLAY_SPEED"), &cfg.ReplaySpeed); err != nil {
		return err
	}
	if err := s.setFloatFromString("min-distance", os.Getenv("ZONECAST_MIN_DISTANCE_METERS"), &cfg.MinDistanceMeters); err != nil {
		return err
	}
	if err := s.setFloatFromString("max-error", os.Getenv("ZONECAST_MAX_ERROR_METERS"), &cfg.MaxErrorMeters); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-size", os.Getenv("ZONECAST_QUEUE_SIZE"), &cfg.QueueSize); err != nil {
		return err
	}

	if err := s.setDuration("min-interval", os.Getenv("ZONECAST_MIN_INTERVAL"), &cfg.MinInterval); err != nil {
		return err
	}
	if err := s.setDuration("interval", os.Getenv("ZONECAST_INTERVAL"), &cfg.Interval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("ZONECAST_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	return nil
}
