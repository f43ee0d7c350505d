package training

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"medtune/schedule"
	"medtune/scoring"
)

// Duration wraps time.Duration so config files can write "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML parses either a Go duration string or a bare number of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %v", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalYAML writes the duration in Go's string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON reports the duration in Go's string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Duration(d).String())), nil
}

// UnmarshalJSON accepts the string form written by MarshalJSON.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %v", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// RunConfig is the immutable-for-the-run parameter set: cadences, batch
// geometry, scoring constants, and the curriculum phase list. It is read
// once at construction and echoed into every checkpoint.
type RunConfig struct {
	NumSteps  int `yaml:"num_steps" json:"num_steps"`
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Cadences, in steps.
	EvalSteps int `yaml:"eval_steps" json:"eval_steps"`
	SaveSteps int `yaml:"save_steps" json:"save_steps"`
	LogSteps  int `yaml:"log_steps" json:"log_steps"`

	// EvalBatches caps how many held-out batches one evaluation consumes.
	EvalBatches int `yaml:"eval_batches" json:"eval_batches"`

	Seed int64 `yaml:"seed" json:"seed"`

	CheckpointDir string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	OutputDir     string `yaml:"output_dir" json:"output_dir"`

	// Backend failure policy: each update() call gets UpdateTimeout, and a
	// failed call is retried up to MaxRetries times before the run fails.
	MaxRetries    int      `yaml:"max_retries" json:"max_retries"`
	UpdateTimeout Duration `yaml:"update_timeout" json:"update_timeout"`

	// ScoreWorkers bounds concurrent response scoring within a batch.
	// 1 disables concurrency.
	ScoreWorkers int `yaml:"score_workers" json:"score_workers"`

	// Progress enables the inline console progress bar and banner.
	Progress bool `yaml:"progress" json:"progress"`

	Scoring scoring.Config   `yaml:"scoring" json:"scoring"`
	Phases  []schedule.Phase `yaml:"phases" json:"phases"`

	// MarkersFile optionally points at a YAML marker-table file, overlaid
	// on the built-in tables. Empty means the defaults.
	MarkersFile string `yaml:"markers_file" json:"markers_file,omitempty"`
}

// DefaultRunConfig returns a runnable configuration with the built-in
// three-phase curriculum.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NumSteps:      2000,
		BatchSize:     4,
		EvalSteps:     100,
		SaveSteps:     200,
		LogSteps:      20,
		EvalBatches:   30,
		Seed:          42,
		CheckpointDir: "checkpoints",
		OutputDir:     "run_output",
		MaxRetries:    3,
		UpdateTimeout: Duration(30 * time.Second),
		ScoreWorkers:  4,
		Progress:      true,
		Scoring:       scoring.DefaultConfig(),
		Phases:        schedule.DefaultPhases(),
	}
}

// LoadRunConfig reads a YAML config file over the defaults, so a file only
// needs to state what it changes.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %v", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration invariants. Phase partition validity
// is checked separately when the scheduler is built.
func (c *RunConfig) Validate() error {
	if c.NumSteps <= 0 {
		return fmt.Errorf("num_steps must be positive, got %d", c.NumSteps)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.EvalSteps <= 0 || c.SaveSteps <= 0 || c.LogSteps <= 0 {
		return fmt.Errorf("eval_steps, save_steps and log_steps must all be positive")
	}
	if c.EvalBatches <= 0 {
		return fmt.Errorf("eval_batches must be positive, got %d", c.EvalBatches)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.UpdateTimeout <= 0 {
		return fmt.Errorf("update_timeout must be positive, got %v", time.Duration(c.UpdateTimeout))
	}
	if c.ScoreWorkers <= 0 {
		return fmt.Errorf("score_workers must be positive, got %d", c.ScoreWorkers)
	}
	if c.Scoring.MinModifier >= 1 || c.Scoring.MaxModifier <= 1 {
		return fmt.Errorf("modifier bounds must satisfy min < 1 < max, got [%g, %g]",
			c.Scoring.MinModifier, c.Scoring.MaxModifier)
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("at least one phase is required")
	}
	return nil
}
