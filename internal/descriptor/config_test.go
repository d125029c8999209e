package descriptor

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "config.yml", `
node:
  subnet_tag: public
  app_key: some-key
payment:
  budget: 1.5
  driver: erc20
  network: holesky
limits:
  startup_timeout: 4m
  max_running_time: 1h
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Node.SubnetTag != "public" || cfg.Node.AppKey != "some-key" {
		t.Errorf("unexpected node config: %+v", cfg.Node)
	}
	if cfg.Payment.Budget != 1.5 || cfg.Payment.Driver != "erc20" {
		t.Errorf("unexpected payment config: %+v", cfg.Payment)
	}
	if cfg.Limits.StartupTimeout != 4*time.Minute {
		t.Errorf("expected 4m startup timeout, got %v", cfg.Limits.StartupTimeout)
	}
	if cfg.Limits.MaxRunningTime != time.Hour {
		t.Errorf("expected 1h max running time, got %v", cfg.Limits.MaxRunningTime)
	}
}

func TestLoadConfig_Override(t *testing.T) {
	dir := t.TempDir()
	base := writeYAML(t, dir, "base.yml", `
node:
  subnet_tag: public
payment:
  budget: 10
  driver: erc20
  network: mainnet
`)
	override := writeYAML(t, dir, "override.yml", `
payment:
  budget: 1
`)

	cfg, err := LoadConfig(base, override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Payment.Budget != 1 {
		t.Errorf("expected overridden budget, got %v", cfg.Payment.Budget)
	}
	if cfg.Payment.Network != "mainnet" {
		t.Errorf("expected base network kept, got %v", cfg.Payment.Network)
	}
}

func TestLoadConfig_UnexpectedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "config.yml", `
node:
  subnet_tag: public
payment:
  budget: 1
  driver: erc20
  network: holesky
unsupported: true
`)

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrUnexpectedKeys) {
		t.Errorf("expected ErrUnexpectedKeys, got %v", err)
	}
}
