package config

import "testing"

func TestValidateDefaultConfigOK(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadBind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateRejectsZeroTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestKeysPathJoinsDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/voxel"
	if got, want := cfg.KeysPath(), "/tmp/voxel/keys.json"; got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}
