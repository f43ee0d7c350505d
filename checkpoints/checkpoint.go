package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the descriptor persisted for one checkpoint: the step it was
// taken at, a metrics snapshot, and an echo of the run configuration.
type State struct {
	Step      int                `json:"step"`
	IsBest    bool               `json:"is_best"`
	Metrics   map[string]float64 `json:"metrics"`
	Config    json.RawMessage    `json:"config,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Saver writes checkpoint state descriptors under a checkpoint directory:
// one subdirectory per regular checkpoint (step_<n>) plus a "best"
// subdirectory that always holds the best-so-far state.
//
// Writes go to a temporary file and are renamed into place, so a write
// that fails midway never leaves a corrupt or partial state visible.
type Saver struct {
	dir string
}

// NewSaver creates a saver rooted at dir, creating it if needed.
func NewSaver(dir string) (*Saver, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %v", err)
	}
	return &Saver{dir: dir}, nil
}

// Dir returns the checkpoint root directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Save persists a state descriptor and returns the checkpoint directory it
// was written to. Best checkpoints go to the "best" subdirectory, regular
// ones to step_<n>.
func (s *Saver) Save(state *State) (string, error) {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}

	name := fmt.Sprintf("step_%d", state.Step)
	if state.IsBest {
		name = "best"
	}
	ckptDir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(ckptDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint %s: %v", name, err)
	}

	if err := writeJSONAtomic(filepath.Join(ckptDir, "state.json"), state); err != nil {
		return "", fmt.Errorf("failed to save checkpoint %s: %v", name, err)
	}
	return ckptDir, nil
}

// Load reads a state descriptor back from a checkpoint directory.
func (s *Saver) Load(ckptDir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(ckptDir, "state.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint state: %v", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint state: %v", err)
	}
	return &state, nil
}

// BestDir returns the path of the best-checkpoint subdirectory, which may
// not exist yet.
func (s *Saver) BestDir() string {
	return filepath.Join(s.dir, "best")
}

// writeJSONAtomic encodes v as indented JSON and moves it into place with
// a rename.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %v", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize %s: %v", filepath.Base(path), err)
	}
	return nil
}
