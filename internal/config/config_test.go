package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProfile_ResolvesRelativeDriverConfigAndSchema(t *testing.T) {
	dir := t.TempDir()
	prof := []byte(`schema_version: v1
driver: kafka
driver_config: kafka.yml
topic: t1
codec: string
`)
	if err := os.WriteFile(filepath.Join(dir, "profile.yml"), prof, 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := LoadProfile(filepath.Join(dir, "profile.yml"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.SchemaVersion != SupportedSchema {
		t.Fatalf("want schema %s, got %s", SupportedSchema, p.SchemaVersion)
	}
	if p.Topic != "t1" || p.Codec != "string" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if !filepath.IsAbs(p.DriverConfig) {
		t.Fatalf("want absolute driver config path, got %q", p.DriverConfig)
	}
}

func TestLoadProfile_DefaultsDriverAndSchema(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "profile.yml"), []byte("topic: t\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	p, err := LoadProfile(filepath.Join(dir, "profile.yml"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Driver != "kafka" || p.SchemaVersion != SupportedSchema {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestLoadProfile_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "profile.yml"), []byte("schema_version: v999\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := LoadProfile(filepath.Join(dir, "profile.yml")); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}
