package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zsprackett/chargewatch/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Realtime.URL != "ws://localhost:8000/charging/ws/charging-updates" {
		t.Errorf("realtime url: got %q", cfg.Realtime.URL)
	}
	if cfg.Realtime.Heartbeat() != 30*time.Second {
		t.Errorf("heartbeat: got %v", cfg.Realtime.Heartbeat())
	}
	if cfg.Realtime.Reconnect() != 5*time.Second {
		t.Errorf("reconnect: got %v", cfg.Realtime.Reconnect())
	}
	if cfg.Realtime.Refresh() != 3*time.Second {
		t.Errorf("refresh: got %v", cfg.Realtime.Refresh())
	}
	if cfg.Realtime.Connect() != 2*time.Second {
		t.Errorf("connect: got %v", cfg.Realtime.Connect())
	}
	if !cfg.Notifications.Desktop {
		t.Error("desktop notifications should default on")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{
		"apiBaseURL": "https://cpms.example.com",
		"realtime": {"url": "wss://cpms.example.com/charging/ws/charging-updates", "heartbeatInterval": "10s"},
		"notifications": {"ntfy": "https://ntfy.sh/chargers"}
	}`), 0644)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBaseURL != "https://cpms.example.com" {
		t.Errorf("apiBaseURL: got %q", cfg.APIBaseURL)
	}
	if cfg.Realtime.Heartbeat() != 10*time.Second {
		t.Errorf("heartbeat: got %v", cfg.Realtime.Heartbeat())
	}
	// Unset fields keep their defaults.
	if cfg.Realtime.Reconnect() != 5*time.Second {
		t.Errorf("reconnect: got %v", cfg.Realtime.Reconnect())
	}
	if cfg.Notifications.NtfyURL != "https://ntfy.sh/chargers" {
		t.Errorf("ntfy: got %q", cfg.Notifications.NtfyURL)
	}
}

func TestDurationFallback(t *testing.T) {
	r := config.RealtimeConfig{HeartbeatInterval: "soon", ReconnectDelay: "-1s", ConnectDelay: "0"}
	if r.Heartbeat() != 30*time.Second {
		t.Errorf("invalid heartbeat should fall back, got %v", r.Heartbeat())
	}
	if r.Reconnect() != 5*time.Second {
		t.Errorf("negative reconnect should fall back, got %v", r.Reconnect())
	}
	if r.Connect() != 0 {
		t.Errorf("explicit zero connect delay: got %v", r.Connect())
	}
}

func TestLoadRejectsBadURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"realtime": {"url": "http://localhost:8000/ws"}}`), 0644)

	if _, err := config.Load(path); err == nil {
		t.Error("expected error for non-websocket realtime url")
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{not json`), 0644)

	if _, err := config.Load(path); err == nil {
		t.Error("expected parse error")
	}
}
