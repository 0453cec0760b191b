package config

import "testing"

func TestBuildSmuxConfigValid(t *testing.T) {
	cfg := Default()
	smuxCfg, err := cfg.BuildSmuxConfig()
	if err != nil {
		t.Fatalf("expected default config to be valid: %v", err)
	}
	if smuxCfg.Version != cfg.SmuxVer {
		t.Fatalf("expected version %d, got %d", cfg.SmuxVer, smuxCfg.Version)
	}
}

func TestBuildSmuxConfigRejectsInvalidVersion(t *testing.T) {
	cfg := Default()
	cfg.SmuxVer = 99
	if _, err := cfg.BuildSmuxConfig(); err == nil {
		t.Fatal("expected an invalid smux version to fail verification")
	}
}
