package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// TierConfig is a provider's per-tier quota/cost bag. Optional fields are
// pointers so a TOML file that omits
// them is distinguishable from one that sets them to zero — required for
// the field-wise override merge in EffectiveModelTier.
type TierConfig struct {
	DisplayName string `toml:"display_name"`

	RPM           *int `toml:"rpm"`
	TPM           *int `toml:"tpm"`
	RPD           *int `toml:"rpd"`
	MaxConcurrent *int `toml:"max_concurrent"`

	DailyQuotaUSD              *float64 `toml:"daily_quota_usd"`
	CostPerMillionInputTokens  *float64 `toml:"cost_per_million_input_tokens"`
	CostPerMillionOutputTokens *float64 `toml:"cost_per_million_output_tokens"`

	Models map[string]TierConfig `toml:"models"`
}

// ProviderConfig is one provider's configuration subtree: which tier is
// active by default, and the named tiers themselves.
type ProviderConfig struct {
	DefaultTier string                `toml:"default_tier"`
	Tiers       map[string]TierConfig `toml:"tiers"`
}

// TierTree is the root of a loaded TOML configuration source: providers
// -> tiers -> models, plus the optional top-level budget/context blocks.
// Unknown keys are ignored by BurntSushi/toml by default.
type TierTree struct {
	Providers map[string]ProviderConfig `toml:"providers"`
	Budget    *BudgetBlock              `toml:"budget"`
	Context   *ContextBlock             `toml:"context"`
}

type BudgetBlock struct {
	DailyUSD *float64 `toml:"daily_usd"`
}

type ContextBlock struct {
	Path string `toml:"path"`
}

// LoadTierTree decodes a single TOML source. A missing file is not an
// error — it returns a zero-value TierTree — so callers can treat every
// source after the bundled defaults as optional.
func LoadTierTree(path string) (TierTree, error) {
	var tree TierTree
	if path == "" {
		return tree, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return tree, nil
	}
	if _, err := toml.DecodeFile(path, &tree); err != nil {
		return tree, err
	}
	return tree, nil
}

// TierSources returns the three source paths in precedence order (later
// overrides earlier): bundled defaults, the user's home config directory,
// the current working directory. cfg.ConfigSearchPaths
// overrides sources 2 and 3 for tests when non-empty.
func TierSources(bundledDefaultsPath string, searchOverrides []string) []string {
	if len(searchOverrides) > 0 {
		return append([]string{bundledDefaultsPath}, searchOverrides...)
	}
	home := ""
	if dir, err := os.UserConfigDir(); err == nil {
		home = filepath.Join(dir, "narrata", "tiers.toml")
	}
	cwd := "narrata.toml"
	return []string{bundledDefaultsPath, home, cwd}
}

// LoadTierConfig loads and merges the three precedence sources into one
// TierTree, later sources winning field-by-field.
func LoadTierConfig(bundledDefaultsPath string, searchOverrides []string) (TierTree, error) {
	merged := TierTree{Providers: map[string]ProviderConfig{}}
	for _, src := range TierSources(bundledDefaultsPath, searchOverrides) {
		tree, err := LoadTierTree(src)
		if err != nil {
			return merged, err
		}
		merged = mergeTierTree(merged, tree)
	}
	return merged, nil
}

func mergeTierTree(dst, src TierTree) TierTree {
	if dst.Providers == nil {
		dst.Providers = map[string]ProviderConfig{}
	}
	for name, p := range src.Providers {
		existing, ok := dst.Providers[name]
		if !ok {
			dst.Providers[name] = p
			continue
		}
		dst.Providers[name] = mergeProviderConfig(existing, p)
	}
	if src.Budget != nil {
		dst.Budget = src.Budget
	}
	if src.Context != nil {
		dst.Context = src.Context
	}
	return dst
}

func mergeProviderConfig(dst, src ProviderConfig) ProviderConfig {
	if src.DefaultTier != "" {
		dst.DefaultTier = src.DefaultTier
	}
	if dst.Tiers == nil {
		dst.Tiers = map[string]TierConfig{}
	}
	for name, t := range src.Tiers {
		existing, ok := dst.Tiers[name]
		if !ok {
			dst.Tiers[name] = t
			continue
		}
		dst.Tiers[name] = mergeTierConfig(existing, t)
	}
	return dst
}

func mergeTierConfig(dst, src TierConfig) TierConfig {
	if src.DisplayName != "" {
		dst.DisplayName = src.DisplayName
	}
	if src.RPM != nil {
		dst.RPM = src.RPM
	}
	if src.TPM != nil {
		dst.TPM = src.TPM
	}
	if src.RPD != nil {
		dst.RPD = src.RPD
	}
	if src.MaxConcurrent != nil {
		dst.MaxConcurrent = src.MaxConcurrent
	}
	if src.DailyQuotaUSD != nil {
		dst.DailyQuotaUSD = src.DailyQuotaUSD
	}
	if src.CostPerMillionInputTokens != nil {
		dst.CostPerMillionInputTokens = src.CostPerMillionInputTokens
	}
	if src.CostPerMillionOutputTokens != nil {
		dst.CostPerMillionOutputTokens = src.CostPerMillionOutputTokens
	}
	if dst.Models == nil {
		dst.Models = map[string]TierConfig{}
	}
	for name, m := range src.Models {
		existing, ok := dst.Models[name]
		if !ok {
			dst.Models[name] = m
			continue
		}
		dst.Models[name] = mergeTierConfig(existing, m)
	}
	return dst
}

// LookupTier returns the named provider/tier, or ok=false when either is
// absent. An unknown provider or tier yields ok=false rather than
// silently substituting defaults — callers decide how to degrade.
func (t TierTree) LookupTier(provider, tier string) (TierConfig, bool) {
	p, ok := t.Providers[provider]
	if !ok {
		return TierConfig{}, false
	}
	tc, ok := p.Tiers[tier]
	return tc, ok
}

// DefaultTier returns the provider's configured default tier name, or
// empty string if the provider is unknown.
func (t TierTree) DefaultTier(provider string) string {
	p, ok := t.Providers[provider]
	if !ok {
		return ""
	}
	return p.DefaultTier
}

// EffectiveModelTier merges a model-level override onto its tier: start
// from the tier-level record, and for each quota/cost field take the model-level
// override when present, else the tier value. The merged record keeps the
// tier's display name.
func (t TierTree) EffectiveModelTier(provider, tier, model string) (TierConfig, bool) {
	base, ok := t.LookupTier(provider, tier)
	if !ok {
		return TierConfig{}, false
	}
	override, hasOverride := base.Models[model]
	if !hasOverride {
		return stripModels(base), true
	}
	merged := base
	if override.RPM != nil {
		merged.RPM = override.RPM
	}
	if override.TPM != nil {
		merged.TPM = override.TPM
	}
	if override.RPD != nil {
		merged.RPD = override.RPD
	}
	if override.MaxConcurrent != nil {
		merged.MaxConcurrent = override.MaxConcurrent
	}
	if override.DailyQuotaUSD != nil {
		merged.DailyQuotaUSD = override.DailyQuotaUSD
	}
	if override.CostPerMillionInputTokens != nil {
		merged.CostPerMillionInputTokens = override.CostPerMillionInputTokens
	}
	if override.CostPerMillionOutputTokens != nil {
		merged.CostPerMillionOutputTokens = override.CostPerMillionOutputTokens
	}
	return stripModels(merged), true
}

func stripModels(tc TierConfig) TierConfig {
	tc.Models = nil
	return tc
}
