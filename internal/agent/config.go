package agent

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	ServerURL         string
	DeviceID          string
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	MaxFailures       int
}

// FromFlags parses the agent flag set. Every flag defaults from a
// TRACKER_AGENT_* environment variable so the binary drops into a unit
// file without arguments.
func FromFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("tracker-agent", flag.ContinueOnError)
	serverURL := fs.String("server", envOrDefault("TRACKER_AGENT_SERVER_URL", "http://localhost:5000"), "tracker server base url")
	deviceID := fs.String("device", envOrDefault("TRACKER_AGENT_DEVICE_ID", hostnameOrDefault("device-unknown")), "device id to report as")
	interval := fs.Duration("interval", durationOrDefault("TRACKER_AGENT_INTERVAL", 10*time.Second), "heartbeat interval")
	timeout := fs.Duration("timeout", durationOrDefault("TRACKER_AGENT_TIMEOUT", 10*time.Second), "per-request timeout")
	maxFailures := fs.Int("max-failures", 3, "consecutive heartbeat failures before giving up")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerURL:         strings.TrimRight(strings.TrimSpace(*serverURL), "/"),
		DeviceID:          strings.TrimSpace(*deviceID),
		HeartbeatInterval: *interval,
		RequestTimeout:    *timeout,
		MaxFailures:       *maxFailures,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server url must start with http:// or https://")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0")
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("max failures must be > 0")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func hostnameOrDefault(fallback string) string {
	hostname, err := os.Hostname()
	if err != nil {
		return fallback
	}
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return fallback
	}
	return hostname
}
