package cli

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvLoaderCandidates_Order(t *testing.T) {
	t.Setenv(OverrideEnvVar, "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, ".env", "")
	if err := fs.Parse([]string{"--env", "deploy/prod.env"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	got := loader.candidates()
	want := []string{"deploy/prod.env", "prod.env", ".env"}
	if len(got) != len(want) {
		t.Fatalf("unexpected candidate count: got %d want %d (%v)", len(got), len(want), got)
	}
	for i, path := range want {
		if got[i].path != path {
			t.Fatalf("candidate %d: got %q want %q", i, got[i].path, path)
		}
	}
}

func TestEnvLoaderLoad_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "override.env")
	if err := os.WriteFile(override, []byte("STORYLINE_TEST_VALUE=override\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(OverrideEnvVar, override)
	t.Setenv("STORYLINE_TEST_VALUE", "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, filepath.Join(dir, "missing.env"), "")

	loaded, err := loader.Load()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if loaded != override {
		t.Fatalf("expected override path, got %q", loaded)
	}
	if os.Getenv("STORYLINE_TEST_VALUE") != "override" {
		t.Fatalf("expected value from override file")
	}
}

func TestEnvLoaderLoad_MissingFiles(t *testing.T) {
	t.Setenv(OverrideEnvVar, "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, filepath.Join(t.TempDir(), "absent.env"), "")
	if _, err := loader.Load(); err == nil {
		t.Fatalf("expected error when no env file exists")
	}
}
