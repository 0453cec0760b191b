package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli"
)

func TestLoadJSONOverlaysFields(t *testing.T) {
	path := writeTempConfig(t, `{"compute-index":2,"num-input-nodes":5,"remoteaddr":"10.0.0.1:9000","key":"secret"}`)

	cfg := Default()
	if err := LoadJSON(&cfg, path); err != nil {
		t.Fatalf("LoadJSON returned error: %v", err)
	}

	if cfg.ComputeIndex != 2 || cfg.NumInputNodes != 5 {
		t.Fatalf("unexpected topology fields: %+v", cfg)
	}
	if cfg.RemoteAddr != "10.0.0.1:9000" || cfg.Key != "secret" {
		t.Fatalf("unexpected transport fields: %+v", cfg)
	}
	// fields absent from the JSON document must keep their defaults
	if cfg.TimesliceSize != Default().TimesliceSize {
		t.Fatalf("expected unrelated default to survive overlay, got %d", cfg.TimesliceSize)
	}
}

func TestLoadJSONMissingFile(t *testing.T) {
	cfg := Default()
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := LoadJSON(&cfg, missing); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyOnlyOverridesSetFlags(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Int("compute-index", 0, "")
	set.Int("mtu", 1350, "")
	_ = set.Parse([]string{"--compute-index", "3"})
	ctx := cli.NewContext(cli.NewApp(), set, nil)

	cfg := Default()
	cfg.Apply(ctx)

	if cfg.ComputeIndex != 3 {
		t.Fatalf("expected compute-index to be overridden to 3, got %d", cfg.ComputeIndex)
	}
	if cfg.MTU != Default().MTU {
		t.Fatalf("expected mtu to keep its default since the flag was never set, got %d", cfg.MTU)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
