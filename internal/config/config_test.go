package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Catalog.Sexes) == 0 || len(cfg.Catalog.AgeRanges) == 0 {
		t.Fatal("default catalog is missing core dimensions")
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cfg := Default()
	cfg.Catalog.Districts = append(cfg.Catalog.Districts, cfg.Catalog.Districts[0])
	if err := cfg.Validate(); err == nil {
		t.Fatal("duplicate district should be rejected")
	}
}

func TestValidateRejectsEmptyDomain(t *testing.T) {
	cfg := Default()
	cfg.Catalog.Sexes = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty sexes domain should be rejected")
	}
}

func TestFromYAMLRoundTrip(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("parse default template: %v", err)
	}
	if len(cfg.Catalog.Platforms) == 0 {
		t.Fatal("platforms missing after parse")
	}
	if _, err := FromYAML([]byte("catalog: [not, a, map]")); err == nil {
		t.Fatal("malformed yaml should be rejected")
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	workspace := t.TempDir()
	cfg, err := LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if len(cfg.Catalog.Sexes) == 0 {
		t.Fatal("fallback config is empty")
	}

	custom := "catalog:\n  sexes: [Male]\n  age_ranges: [18_24]\n  districts: [Central]\n  kp_types: [FSW]\n  disability_types: [Visual]\n  platforms: [Facebook]\n"
	if err := os.WriteFile(filepath.Join(workspace, "bonaso.yml"), []byte(custom), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load custom: %v", err)
	}
	if len(cfg.Catalog.Sexes) != 1 {
		t.Fatalf("custom catalog not loaded: %v", cfg.Catalog.Sexes)
	}
}
