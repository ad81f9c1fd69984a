package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const dirName = ".chargewatch"

// RealtimeConfig tunes the live-update stream. Durations are Go duration
// strings ("30s"); unparseable or non-positive values fall back to the
// defaults.
type RealtimeConfig struct {
	URL               string `json:"url"`
	HeartbeatInterval string `json:"heartbeatInterval"`
	ReconnectDelay    string `json:"reconnectDelay"`
	RefreshDelay      string `json:"refreshDelay"`
	ConnectDelay      string `json:"connectDelay"`
}

type NotificationsConfig struct {
	Desktop bool   `json:"desktop"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

type MetricsConfig struct {
	Addr string `json:"addr"` // empty disables the endpoint
}

type Account struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"` // bcrypt, see `chargewatch hashpw`
	FullName     string `json:"fullName"`
	IsAdmin      bool   `json:"isAdmin"`
}

type DevserverConfig struct {
	Addr      string    `json:"addr"`
	JWTSecret string    `json:"jwtSecret"`
	Accounts  []Account `json:"accounts"`
}

type Config struct {
	APIBaseURL    string              `json:"apiBaseURL"`
	Realtime      RealtimeConfig      `json:"realtime"`
	Notifications NotificationsConfig `json:"notifications"`
	Metrics       MetricsConfig       `json:"metrics"`
	LogDir        string              `json:"logDir"`
	LogLevel      string              `json:"logLevel"`
	Devserver     DevserverConfig     `json:"devserver"`
}

const (
	defaultHeartbeat = 30 * time.Second
	defaultReconnect = 5 * time.Second
	defaultRefresh   = 3 * time.Second
	defaultConnect   = 2 * time.Second
)

func Defaults() Config {
	return Config{
		APIBaseURL: "http://localhost:8000",
		Realtime: RealtimeConfig{
			URL:               "ws://localhost:8000/charging/ws/charging-updates",
			HeartbeatInterval: defaultHeartbeat.String(),
			ReconnectDelay:    defaultReconnect.String(),
			RefreshDelay:      defaultRefresh.String(),
			ConnectDelay:      defaultConnect.String(),
		},
		Notifications: NotificationsConfig{Desktop: true},
		LogDir:        filepath.Join(Dir(), "logs"),
		LogLevel:      "info",
		Devserver:     DevserverConfig{Addr: "127.0.0.1:8000"},
	}
}

// Dir is ~/.chargewatch.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

func DBPath() string {
	return filepath.Join(Dir(), "state.db")
}

// Load reads path over Defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the endpoint URLs.
func (c Config) Validate() error {
	if _, err := parseURL(c.APIBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("apiBaseURL: %w", err)
	}
	if _, err := parseURL(c.Realtime.URL, "ws", "wss"); err != nil {
		return fmt.Errorf("realtime.url: %w", err)
	}
	return nil
}

func parseURL(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%q: want a %v URL with a host", raw, schemes)
}

func (r RealtimeConfig) Heartbeat() time.Duration {
	return duration(r.HeartbeatInterval, defaultHeartbeat)
}

func (r RealtimeConfig) Reconnect() time.Duration {
	return duration(r.ReconnectDelay, defaultReconnect)
}

func (r RealtimeConfig) Refresh() time.Duration {
	return duration(r.RefreshDelay, defaultRefresh)
}

// Connect is the delay before the first connection after start-up.
// Zero is allowed and connects at once.
func (r RealtimeConfig) Connect() time.Duration {
	if r.ConnectDelay == "0" {
		return 0
	}
	return duration(r.ConnectDelay, defaultConnect)
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
