package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("test-club")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Club.Subdomain != "test-club" {
		t.Fatalf("subdomain = %q", cfg.Club.Subdomain)
	}
	if cfg.Workflow.CascadeCancelMessage != "Cancelled due to task cancellation" {
		t.Fatalf("cascade message = %q", cfg.Workflow.CascadeCancelMessage)
	}
	if cfg.Server.BasePath != "/v0" || cfg.Server.Listen != ":8080" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("test-club")))
	if err != nil {
		t.Fatalf("parse generated config: %v", err)
	}
	if cfg.Club.Subdomain != "test-club" {
		t.Fatalf("subdomain = %q", cfg.Club.Subdomain)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := Default("test-club")
	cfg.Club.Subdomain = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing subdomain")
	}
	cfg = Default("test-club")
	cfg.Workflow.AutoValidatedMessage = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing auto_validated_message")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestLoadOptionalFallsBack(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir(), "fallback-club")
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Club.Subdomain != "fallback-club" {
		t.Fatalf("subdomain = %q", cfg.Club.Subdomain)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clubline.yml"), []byte(GenerateDefault("from-file")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Club.Subdomain != "from-file" {
		t.Fatalf("subdomain = %q", cfg.Club.Subdomain)
	}
}
