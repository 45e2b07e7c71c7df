package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadTierConfig_PrecedenceAndMerge(t *testing.T) {
	dir := t.TempDir()

	bundled := writeTOML(t, dir, "bundled.toml", `
[providers.anthropic]
default_tier = "free"

[providers.anthropic.tiers.free]
display_name = "Free"
rpm = 5
tpm = 20000
rpd = 100
max_concurrent = 1

[providers.anthropic.tiers.free.models."claude-3-haiku"]
rpm = 10
`)
	home := writeTOML(t, dir, "home.toml", `
[providers.anthropic.tiers.free]
rpm = 8
`)
	cwd := writeTOML(t, dir, "cwd.toml", `
[providers.anthropic.tiers.free]
tpm = 40000
`)

	tree, err := LoadTierConfig(bundled, []string{home, cwd})
	if err != nil {
		t.Fatalf("LoadTierConfig: %v", err)
	}

	tier, ok := tree.LookupTier("anthropic", "free")
	if !ok {
		t.Fatalf("expected tier to resolve")
	}
	if tier.RPM == nil || *tier.RPM != 8 {
		t.Fatalf("expected rpm overridden to 8 by home source, got %+v", tier.RPM)
	}
	if tier.TPM == nil || *tier.TPM != 40000 {
		t.Fatalf("expected tpm overridden to 40000 by cwd source, got %+v", tier.TPM)
	}
	if tier.RPD == nil || *tier.RPD != 100 {
		t.Fatalf("expected rpd to retain bundled value, got %+v", tier.RPD)
	}

	effective, ok := tree.EffectiveModelTier("anthropic", "free", "claude-3-haiku")
	if !ok {
		t.Fatalf("expected effective tier to resolve")
	}
	if effective.RPM == nil || *effective.RPM != 10 {
		t.Fatalf("expected model override rpm=10, got %+v", effective.RPM)
	}
	if effective.TPM == nil || *effective.TPM != 40000 {
		t.Fatalf("expected tier tpm to fall through for unmodeled field, got %+v", effective.TPM)
	}
}

func TestLoadTierConfig_UnknownProviderOrTierYieldsNotOK(t *testing.T) {
	dir := t.TempDir()
	bundled := writeTOML(t, dir, "bundled.toml", `
[providers.anthropic]
default_tier = "free"
[providers.anthropic.tiers.free]
rpm = 5
`)
	tree, err := LoadTierConfig(bundled, []string{""})
	if err != nil {
		t.Fatalf("LoadTierConfig: %v", err)
	}
	if _, ok := tree.LookupTier("openai", "free"); ok {
		t.Fatal("expected unknown provider to yield not-ok")
	}
	if _, ok := tree.LookupTier("anthropic", "paid"); ok {
		t.Fatal("expected unknown tier to yield not-ok")
	}
}

func TestLoadTierConfig_MissingSourcesSkippedSilently(t *testing.T) {
	tree, err := LoadTierConfig("/nonexistent/bundled.toml", []string{"/nonexistent/home.toml", "/nonexistent/cwd.toml"})
	if err != nil {
		t.Fatalf("expected missing sources to be skipped, got error: %v", err)
	}
	if len(tree.Providers) != 0 {
		t.Fatalf("expected empty tree, got %+v", tree)
	}
}
