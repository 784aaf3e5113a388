// Package rules implements the streaming rule engine (C6): per-rule
// sliding-window detectors, cooldown/deduplication, and alert emission.
package rules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Severity is the alert severity a rule fires at.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

// ParseSeverity maps a case-insensitive string to a Severity, defaulting to
// SeverityInfo for anything unrecognized.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	default:
		return SeverityInfo
	}
}

// String returns the lowercase wire representation, as used in the alerts
// file (§6).
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "info"
	}
}

// Detector is the closed set of detector variants a rule may use. Each
// concrete type is a tagged variant; adding a new detector means adding one
// type here and one arm at each evaluation site in engine.go, per the
// "dynamic detector dispatch" design note.
type Detector interface {
	detectorKind() string
}

// ForksPerSec fires when the fork count in the last DurationS seconds is at
// least max(Threshold, Threshold*DurationS). See the DESIGN NOTES section
// for why this target is preserved as-is rather than "fixed".
type ForksPerSec struct {
	Threshold uint64
	DurationS uint64
}

func (ForksPerSec) detectorKind() string { return "forks_per_sec" }

// ForkBurst fires when the fork count in the last WindowS seconds is at
// least Threshold.
type ForkBurst struct {
	Threshold uint64
	WindowS   uint64
}

func (ForkBurst) detectorKind() string { return "fork_burst" }

// ShortJobFlood fires when at least Threshold exec lifetimes of at most
// MaxExecMs completed within WindowS seconds.
type ShortJobFlood struct {
	Threshold uint64
	WindowS   uint64
	MaxExecMs uint64
}

func (ShortJobFlood) detectorKind() string { return "short_job_flood" }

// RunawayTree fires when a single parent PID accounts for at least
// Threshold forks within WindowS seconds.
type RunawayTree struct {
	Threshold uint64
	WindowS   uint64
}

func (RunawayTree) detectorKind() string { return "runaway_tree" }

// SubtreeCPUPct fires when a process's CPU sample has exceeded ThresholdPct
// continuously for DurationS seconds.
type SubtreeCPUPct struct {
	ThresholdPct float64
	DurationS    uint64
}

func (SubtreeCPUPct) detectorKind() string { return "subtree_cpu_pct" }

// SubtreeRSSMb is the memory analogue of SubtreeCPUPct, derived from
// mem_pct * system total.
type SubtreeRSSMb struct {
	ThresholdMB uint64
	DurationS   uint64
}

func (SubtreeRSSMb) detectorKind() string { return "subtree_rss_mb" }

// ExecRate is reserved: parsed for forward compatibility, evaluation is a
// no-op (spec.md §9).
type ExecRate struct {
	Regex           string
	RatePerMin      uint64
	MedianLifetimeS uint64
}

func (ExecRate) detectorKind() string { return "exec_rate" }

// ZombieCount is reserved: parsed for forward compatibility, evaluation is a
// no-op (spec.md §9).
type ZombieCount struct {
	Threshold uint64
	DurationS uint64
}

func (ZombieCount) detectorKind() string { return "zombie_count" }

// Config is one parsed, validated rule.
type Config struct {
	Name     string
	Severity Severity
	Cooldown uint64 // seconds
	Detector Detector
}

const (
	defaultCooldownSecs       = 60
	defaultShortJobDurationMs = 1000
)

// rawRule is the wire shape accepted from either YAML or TOML. Only the
// fields relevant to the rule's detector need be present; unknown top-level
// fields are tolerated by both decoders.
type rawRule struct {
	Name          string   `yaml:"name" toml:"name"`
	Severity      string   `yaml:"severity" toml:"severity"`
	Cooldown      *uint64  `yaml:"cooldown" toml:"cooldown"`
	DetectorName  string   `yaml:"detector" toml:"detector"`
	Threshold     *uint64  `yaml:"threshold" toml:"threshold"`
	DurationS     *uint64  `yaml:"duration_s" toml:"duration_s"`
	WindowS       *uint64  `yaml:"window_s" toml:"window_s"`
	MaxExecMs     *uint64  `yaml:"max_exec_ms" toml:"max_exec_ms"`
	ThresholdPct  *float64 `yaml:"threshold_pct" toml:"threshold_pct"`
	ThresholdMB   *uint64  `yaml:"threshold_mb" toml:"threshold_mb"`
	Regex         string   `yaml:"regex" toml:"regex"`
	RatePerMin    *uint64  `yaml:"rate_per_min" toml:"rate_per_min"`
	MedianLifeS   *uint64  `yaml:"median_lifetime_s" toml:"median_lifetime_s"`
}

type tomlDoc struct {
	Rules []rawRule `toml:"rules"`
}

// ParseRules parses a rule file's contents, trying the extension-hinted
// format first and falling back to the other on failure (§6: "detection by
// file extension hint with fallback attempts").
func ParseRules(text string, path string) ([]Config, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	type attempt struct {
		name string
		fn   func(string) ([]rawRule, error)
	}
	yamlFirst := []attempt{
		{"yaml", parseYAML},
		{"toml", parseTOML},
	}
	tomlFirst := []attempt{
		{"toml", parseTOML},
		{"yaml", parseYAML},
	}

	order := yamlFirst
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "toml":
		order = tomlFirst
	case "yaml", "yml":
		order = yamlFirst
	}

	var errs []string
	for _, a := range order {
		raws, err := a.fn(text)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", a.name, err))
			continue
		}
		cfgs, err := buildConfigs(raws)
		if err != nil {
			return nil, err
		}
		return cfgs, nil
	}
	return nil, fmt.Errorf("failed to parse rules: %s", strings.Join(errs, "; "))
}

func parseYAML(text string) ([]rawRule, error) {
	var raws []rawRule
	if err := yaml.Unmarshal([]byte(text), &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

func parseTOML(text string) ([]rawRule, error) {
	var doc tomlDoc
	if _, err := toml.Decode(text, &doc); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

func buildConfigs(raws []rawRule) ([]Config, error) {
	cfgs := make([]Config, 0, len(raws))
	for _, r := range raws {
		cfg, err := buildConfig(r)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func u64(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func f64(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Serialize renders cfgs back into YAML rule-file text in the same rawRule
// shape ParseRules reads, the Go equivalent of the Rust source's serde
// Serialize on RawDetector. It renders a parsed and possibly-defaulted rule
// set back to text; within this module only the config round-trip tests
// call it.
func Serialize(cfgs []Config) (string, error) {
	raws := make([]rawRule, 0, len(cfgs))
	for _, cfg := range cfgs {
		r, err := toRawRule(cfg)
		if err != nil {
			return "", err
		}
		raws = append(raws, r)
	}
	out, err := yaml.Marshal(raws)
	if err != nil {
		return "", fmt.Errorf("rule config: marshal: %w", err)
	}
	return string(out), nil
}

func ptrU64(v uint64) *uint64   { return &v }
func ptrF64(v float64) *float64 { return &v }

func toRawRule(cfg Config) (rawRule, error) {
	r := rawRule{
		Name:     cfg.Name,
		Severity: cfg.Severity.String(),
		Cooldown: ptrU64(cfg.Cooldown),
	}

	switch d := cfg.Detector.(type) {
	case ForksPerSec:
		r.DetectorName = "forks_per_sec"
		r.Threshold = ptrU64(d.Threshold)
		r.DurationS = ptrU64(d.DurationS)
	case ForkBurst:
		r.DetectorName = "fork_burst"
		r.Threshold = ptrU64(d.Threshold)
		r.WindowS = ptrU64(d.WindowS)
	case ShortJobFlood:
		r.DetectorName = "short_job_flood"
		r.Threshold = ptrU64(d.Threshold)
		r.WindowS = ptrU64(d.WindowS)
		r.MaxExecMs = ptrU64(d.MaxExecMs)
	case RunawayTree:
		r.DetectorName = "runaway_tree"
		r.Threshold = ptrU64(d.Threshold)
		r.WindowS = ptrU64(d.WindowS)
	case SubtreeCPUPct:
		r.DetectorName = "subtree_cpu_pct"
		r.ThresholdPct = ptrF64(d.ThresholdPct)
		r.DurationS = ptrU64(d.DurationS)
	case SubtreeRSSMb:
		r.DetectorName = "subtree_rss_mb"
		r.ThresholdMB = ptrU64(d.ThresholdMB)
		r.DurationS = ptrU64(d.DurationS)
	case ExecRate:
		r.DetectorName = "exec_rate"
		r.Regex = d.Regex
		r.RatePerMin = ptrU64(d.RatePerMin)
		r.MedianLifeS = ptrU64(d.MedianLifetimeS)
	case ZombieCount:
		r.DetectorName = "zombie_count"
		r.Threshold = ptrU64(d.Threshold)
		r.DurationS = ptrU64(d.DurationS)
	default:
		return rawRule{}, fmt.Errorf("rule %q: unknown detector type %T", cfg.Name, cfg.Detector)
	}

	return r, nil
}

func buildConfig(r rawRule) (Config, error) {
	if strings.TrimSpace(r.Name) == "" {
		return Config{}, fmt.Errorf("rule config: name is required")
	}

	var detector Detector
	switch strings.ToLower(r.DetectorName) {
	case "forks_per_sec":
		detector = ForksPerSec{Threshold: u64(r.Threshold), DurationS: u64(r.DurationS)}
	case "fork_burst":
		detector = ForkBurst{Threshold: u64(r.Threshold), WindowS: u64(r.WindowS)}
	case "short_job_flood":
		maxExecMs := u64(r.MaxExecMs)
		if maxExecMs == 0 {
			maxExecMs = defaultShortJobDurationMs
		}
		detector = ShortJobFlood{
			Threshold: u64(r.Threshold),
			WindowS:   u64(r.WindowS),
			MaxExecMs: maxExecMs,
		}
	case "runaway_tree":
		detector = RunawayTree{Threshold: u64(r.Threshold), WindowS: u64(r.WindowS)}
	case "subtree_cpu_pct":
		detector = SubtreeCPUPct{ThresholdPct: f64(r.ThresholdPct), DurationS: u64(r.DurationS)}
	case "subtree_rss_mb":
		detector = SubtreeRSSMb{ThresholdMB: u64(r.ThresholdMB), DurationS: u64(r.DurationS)}
	case "exec_rate":
		detector = ExecRate{
			Regex:           r.Regex,
			RatePerMin:      u64(r.RatePerMin),
			MedianLifetimeS: u64(r.MedianLifeS),
		}
	case "zombie_count":
		detector = ZombieCount{Threshold: u64(r.Threshold), DurationS: u64(r.DurationS)}
	case "":
		return Config{}, fmt.Errorf("rule %q: detector is required", r.Name)
	default:
		return Config{}, fmt.Errorf("rule %q: unknown detector %q", r.Name, r.DetectorName)
	}

	cooldown := uint64(defaultCooldownSecs)
	if r.Cooldown != nil {
		cooldown = *r.Cooldown
	}

	return Config{
		Name:     r.Name,
		Severity: ParseSeverity(r.Severity),
		Cooldown: cooldown,
		Detector: detector,
	}, nil
}
