package main

import (
	"os"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Missing config file should fall back to defaults, got %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Database != "snapfleet.db" {
		t.Errorf("Expected default database path, got %q", cfg.Database)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := "test_config.yaml"
	defer os.Remove(path)

	content := []byte("port: 9090\ndatabase: /var/lib/snapfleet/fleet.db\nlog_level: debug\n")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.Database != "/var/lib/snapfleet/fleet.db" {
		t.Errorf("Expected configured database path, got %q", cfg.Database)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.LogLevel)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := "test_config_partial.yaml"
	defer os.Remove(path)

	if err := os.WriteFile(path, []byte("port: 7000\n"), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", cfg.Port)
	}
	// Unset keys keep their defaults
	if cfg.Database != "snapfleet.db" {
		t.Errorf("Expected default database path, got %q", cfg.Database)
	}

	badPath := "test_config_bad.yaml"
	defer os.Remove(badPath)
	if err := os.WriteFile(badPath, []byte("port: [unclosed\n"), 0600); err != nil {
		t.Fatalf("Failed to write bad config file: %v", err)
	}
	if _, err := LoadConfig(badPath); err == nil {
		t.Error("Malformed YAML parsed without error")
	}
}
