package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML config file. Durations are strings to keep it TOML friendly.
type FileConfig struct {
	LogLevel  string          `toml:"log_level"`
	LogFormat string          `toml:"log_format"`
	Serve     ServeFileConfig `toml:"serve"`
	Track     TrackFileConfig `toml:"track"`
}

// ServeFileConfig is the [serve] table.
type ServeFileConfig struct {
	ListenAddr           string   `toml:"listen_addr"`
	AuthToken            string   `toml:"auth_token"`
	Actor                string   `toml:"actor"`
	LoginURL             string   `toml:"login_url"`
	TargetURL            string   `toml:"target_url"`
	Username             string   `toml:"username"`
	Password             string   `toml:"password"`
	Headless             *bool    `toml:"headless"`
	WebhookURL           string   `toml:"webhook_url"`
	WebhookToken         string   `toml:"webhook_token"`
	MaxAttempts          int      `toml:"max_attempts"`
	RetryDelay           string   `toml:"retry_delay"`
	MessageFormat        string   `toml:"message_format"`
	InvalidationPatterns []string `toml:"invalidation_patterns"`
	DedupSize            int      `toml:"dedup_size"`
	InitTimeout          string   `toml:"init_timeout"`
	PostTimeout          string   `toml:"post_timeout"`
	ShutdownTimeout      string   `toml:"shutdown_timeout"`
	SweepInterval        string   `toml:"sweep_interval"`
	RateLimit            int      `toml:"rate_limit"`
	RateWindow           string   `toml:"rate_window"`
	TrustedProxies       []string `toml:"trusted_proxies"`
	AMQPURL              string   `toml:"amqp_url"`
	AMQPExchange         string   `toml:"amqp_exchange"`
}

// TrackFileConfig is the [track] table.
type TrackFileConfig struct {
	Catalog           string  `toml:"catalog"`
	Watch             *bool   `toml:"watch"`
	Provider          string  `toml:"provider"`
	ReplayFile        string  `toml:"replay_file"`
	ReplaySpeed       float64 `toml:"replay_speed"`
	MQTTBroker        string  `toml:"mqtt_broker"`
	MQTTTopic         string  `toml:"mqtt_topic"`
	MQTTClientID      string  `toml:"mqtt_client_id"`
	MQTTUsername      string  `toml:"mqtt_username"`
	MQTTPassword      string  `toml:"mqtt_password"`
	Accuracy          string  `toml:"accuracy"`
	MinInterval       string  `toml:"min_interval"`
	MinDistanceMeters float64 `toml:"min_distance_meters"`
	MaxErrorMeters    float64 `toml:"max_error_meters"`
	Policy            string  `toml:"policy"`
	Interval          string  `toml:"interval"`
	Selection         string  `toml:"selection"`
	PayloadMode       string  `toml:"payload_mode"`
	ForcePost         *bool   `toml:"force_post"`
	ServerURL         string  `toml:"server_url"`
	AuthToken         string  `toml:"auth_token"`
	HTTPTimeout       string  `toml:"http_timeout"`
	QueueSize         int     `toml:"queue_size"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.zonecast/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".zonecast", "config.toml")
	}
	return ""
}

// ApplyServeFileConfig applies the file's top-level and [serve] values.
// It respects flags that have been explicitly set (changed map).
func ApplyServeFileConfig(cfg *ServeConfig, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)
	f := fc.Serve

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("listen", f.ListenAddr, &cfg.ListenAddr)
	s.setString("auth-token", f.AuthToken, &cfg.AuthToken)
	s.setString("actor", f.Actor, &cfg.Actor)
	s.setString("login-url", f.LoginURL, &cfg.LoginURL)
	s.setString("target-url", f.TargetURL, &cfg.TargetURL)
	s.setString("username", f.Username, &cfg.Username)
	s.setString("password", f.Password, &cfg.Password)
	s.setBool("headless", f.Headless, &cfg.Headless)
	s.setString("webhook-url", f.WebhookURL, &cfg.WebhookURL)
	s.setString("webhook-token", f.WebhookToken, &cfg.WebhookToken)
	s.setInt("max-attempts", f.MaxAttempts, &cfg.MaxAttempts)
	s.setString("message-format", f.MessageFormat, &cfg.MessageFormat)
	s.setStrings("invalidation-patterns", f.InvalidationPatterns, &cfg.InvalidationPatterns)
	s.setInt("dedup-size", f.DedupSize, &cfg.DedupSize)
	s.setInt("rate-limit", f.RateLimit, &cfg.RateLimit)
	s.setStrings("trusted-proxies", f.TrustedProxies, &cfg.TrustedProxies)
	s.setString("amqp-url", f.AMQPURL, &cfg.AMQPURL)
	s.setString("amqp-exchange", f.AMQPExchange, &cfg.AMQPExchange)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"retry-delay", f.RetryDelay, &cfg.RetryDelay},
		{"init-timeout", f.InitTimeout, &cfg.InitTimeout},
		{"post-timeout", f.PostTimeout, &cfg.PostTimeout},
		{"shutdown-timeout", f.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"sweep-interval", f.SweepInterval, &cfg.SweepInterval},
		{"rate-window", f.RateWindow, &cfg.RateWindow},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTrackFileConfig applies the file's top-level and [track] values.
// It respects flags that have been explicitly set (changed map).
func ApplyTrackFileConfig(cfg *TrackConfig, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)
	f := fc.Track

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("catalog", f.Catalog, &cfg.Catalog)
	s.setBool("watch", f.Watch, &cfg.Watch)
	s.setString("provider", f.Provider, &cfg.Provider)
	s.setString("replay-file", f.ReplayFile, &cfg.ReplayFile)
	s.setFloat("replay-speed", f.ReplaySpeed, &cfg.ReplaySpeed)
	s.setString("mqtt-broker", f.MQTTBroker, &cfg.MQTTBroker)
	s.setString("mqtt-topic", f.MQTTTopic, &cfg.MQTTTopic)
	s.setString("mqtt-client-id", f.MQTTClientID, &cfg.MQTTClientID)
	s.setString("mqtt-username", f.MQTTUsername, &cfg.MQTTUsername)
	s.setString("mqtt-password", f.MQTTPassword, &cfg.MQTTPassword)
	s.setString("accuracy", f.Accuracy, &cfg.Accuracy)
	s.setFloat("min-distance", f.MinDistanceMeters, &cfg.MinDistanceMeters)
	s.setFloat("max-error", f.MaxErrorMeters, &cfg.MaxErrorMeters)
	s.setString("policy", f.Policy, &cfg.Policy)
	s.setString("selection", f.Selection, &cfg.Selection)
	s.setString("payload-mode", f.PayloadMode, &cfg.PayloadMode)
	s.setBool("force-post", f.ForcePost, &cfg.ForcePost)
	s.setString("server-url", f.ServerURL, &cfg.ServerURL)
	s.setString("auth-token", f.AuthToken, &cfg.AuthToken)
	s.setInt("queue-size", f.QueueSize, &cfg.QueueSize)

	if err := s.setDuration("min-interval", f.MinInterval, &cfg.MinInterval); err != nil {
		return err
	}
	if err := s.setDuration("interval", f.Interval, &cfg.Interval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", f.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
