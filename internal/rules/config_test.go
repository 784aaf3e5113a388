package rules

import (
	"reflect"
	"testing"
)

const sampleRulesYAML = `
- name: burst
  severity: high
  detector: fork_burst
  threshold: 10
  window_s: 5
  cooldown: 30
- name: forks
  severity: medium
  detector: forks_per_sec
  threshold: 3
  duration_s: 10
- name: flood
  severity: low
  detector: short_job_flood
  threshold: 20
  window_s: 60
  max_exec_ms: 500
- name: tree
  detector: runaway_tree
  threshold: 8
  window_s: 15
- name: cpu
  severity: high
  detector: subtree_cpu_pct
  threshold_pct: 90.5
  duration_s: 30
- name: rss
  detector: subtree_rss_mb
  threshold_mb: 512
  duration_s: 20
- name: execs
  detector: exec_rate
  regex: "^/tmp/.*"
  rate_per_min: 100
  median_lifetime_s: 2
- name: zombies
  detector: zombie_count
  threshold: 5
  duration_s: 120
`

func TestParseSerializeReparseRoundTrips(t *testing.T) {
	original, err := ParseRules(sampleRulesYAML, "rules.yaml")
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	if len(original) != 8 {
		t.Fatalf("got %d rules, want 8", len(original))
	}

	text, err := Serialize(original)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	reparsed, err := ParseRules(text, "rules.yaml")
	if err != nil {
		t.Fatalf("ParseRules() on serialized text error: %v", err)
	}

	if !reflect.DeepEqual(original, reparsed) {
		t.Fatalf("round trip mismatch:\noriginal = %#v\nreparsed = %#v", original, reparsed)
	}
}

func TestSerializeSingleRuleEachDetector(t *testing.T) {
	cfgs := []Config{
		{Name: "a", Severity: SeverityInfo, Cooldown: 60, Detector: ForksPerSec{Threshold: 1, DurationS: 2}},
		{Name: "b", Severity: SeverityLow, Cooldown: 60, Detector: ForkBurst{Threshold: 3, WindowS: 4}},
		{Name: "c", Severity: SeverityMedium, Cooldown: 60, Detector: ShortJobFlood{Threshold: 5, WindowS: 6, MaxExecMs: 7}},
		{Name: "d", Severity: SeverityHigh, Cooldown: 60, Detector: RunawayTree{Threshold: 8, WindowS: 9}},
		{Name: "e", Severity: SeverityInfo, Cooldown: 60, Detector: SubtreeCPUPct{ThresholdPct: 10.5, DurationS: 11}},
		{Name: "f", Severity: SeverityInfo, Cooldown: 60, Detector: SubtreeRSSMb{ThresholdMB: 12, DurationS: 13}},
		{Name: "g", Severity: SeverityInfo, Cooldown: 60, Detector: ExecRate{Regex: "x", RatePerMin: 14, MedianLifetimeS: 15}},
		{Name: "h", Severity: SeverityInfo, Cooldown: 60, Detector: ZombieCount{Threshold: 16, DurationS: 17}},
	}

	for _, cfg := range cfgs {
		t.Run(cfg.Name, func(t *testing.T) {
			text, err := Serialize([]Config{cfg})
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			out, err := ParseRules(text, "rules.yaml")
			if err != nil {
				t.Fatalf("ParseRules() error: %v", err)
			}
			if len(out) != 1 {
				t.Fatalf("got %d rules, want 1", len(out))
			}
			if !reflect.DeepEqual(cfg, out[0]) {
				t.Fatalf("round trip mismatch:\nwant = %#v\ngot  = %#v", cfg, out[0])
			}
		})
	}
}

func TestSerializeEmptyConfigsYieldsEmptyList(t *testing.T) {
	text, err := Serialize(nil)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	out, err := ParseRules(text, "rules.yaml")
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d rules, want 0", len(out))
	}
}

func TestSerializeUnknownDetectorErrors(t *testing.T) {
	cfg := Config{Name: "bad", Detector: nil}
	if _, err := Serialize([]Config{cfg}); err == nil {
		t.Fatal("expected an error serializing a config with a nil detector")
	}
}
