package training

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestDefaultRunConfigIsValid(t *testing.T) {
	cfg := DefaultRunConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadRunConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
num_steps: 10
batch_size: 5
eval_steps: 5
save_steps: 5
update_timeout: 5s
markers_file: custom_markers.yaml
phases:
  - id: warmup
    start_step: 1
    end_step: 5
    media_ratio: 0.2
  - id: main
    start_step: 6
    end_step: 10
    media_ratio: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadRunConfig(path)
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}

	if cfg.NumSteps != 10 || cfg.BatchSize != 5 {
		t.Errorf("overrides not applied: steps=%d batch=%d", cfg.NumSteps, cfg.BatchSize)
	}
	if time.Duration(cfg.UpdateTimeout) != 5*time.Second {
		t.Errorf("expected 5s update timeout, got %v", time.Duration(cfg.UpdateTimeout))
	}
	if len(cfg.Phases) != 2 {
		t.Errorf("expected 2 phases, got %d", len(cfg.Phases))
	}
	if cfg.MarkersFile != "custom_markers.yaml" {
		t.Errorf("markers_file not applied: %q", cfg.MarkersFile)
	}
	// Untouched fields keep their defaults.
	if cfg.LogSteps != DefaultRunConfig().LogSteps {
		t.Errorf("log_steps default lost: %d", cfg.LogSteps)
	}
}

func TestLoadRunConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("num_steps: -5\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadRunConfig(path); err == nil {
		t.Errorf("expected error for negative num_steps")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{"valid", func(c *RunConfig) {}, false},
		{"zero batch", func(c *RunConfig) { c.BatchSize = 0 }, true},
		{"zero eval cadence", func(c *RunConfig) { c.EvalSteps = 0 }, true},
		{"negative retries", func(c *RunConfig) { c.MaxRetries = -1 }, true},
		{"zero timeout", func(c *RunConfig) { c.UpdateTimeout = 0 }, true},
		{"zero workers", func(c *RunConfig) { c.ScoreWorkers = 0 }, true},
		{"min modifier above 1", func(c *RunConfig) { c.Scoring.MinModifier = 1.5 }, true},
		{"max modifier below 1", func(c *RunConfig) { c.Scoring.MaxModifier = 0.9 }, true},
		{"no phases", func(c *RunConfig) { c.Phases = nil }, true},
	}

	for _, tt := range tests {
		cfg := DefaultRunConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr = %t", tt.name, err, tt.wantErr)
		}
	}
}

func TestDurationYAMLForms(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"1m30s"`), &d); err != nil {
		t.Fatalf("string form failed: %v", err)
	}
	if time.Duration(d) != 90*time.Second {
		t.Errorf("expected 90s, got %v", time.Duration(d))
	}

	if err := yaml.Unmarshal([]byte(`2.5`), &d); err != nil {
		t.Fatalf("numeric form failed: %v", err)
	}
	if time.Duration(d) != 2500*time.Millisecond {
		t.Errorf("expected 2.5s, got %v", time.Duration(d))
	}

	if err := yaml.Unmarshal([]byte(`"bogus"`), &d); err == nil {
		t.Errorf("expected error for bogus duration")
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultRunConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	loaded := DefaultRunConfig()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config round-trip mismatch (-want +got):\n%s", diff)
	}
}
