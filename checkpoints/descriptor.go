package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"medtune/metrics"
)

// RunDescriptor is written once, at run finalization: the configuration
// the run used, its full metrics history, and a pointer to the best
// checkpoint.
type RunDescriptor struct {
	Config         json.RawMessage  `json:"config"`
	FinalStep      int              `json:"final_step"`
	FinalState     string           `json:"final_state"`
	BestEvalLoss   float64          `json:"best_eval_loss"`
	BestCheckpoint string           `json:"best_checkpoint,omitempty"`
	History        []metrics.Record `json:"history"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// WriteRunDescriptor persists the descriptor and a human-readable summary
// into the run output directory.
func WriteRunDescriptor(dir string, d *RunDescriptor) error {
	if d.FinishedAt.IsZero() {
		d.FinishedAt = time.Now().UTC()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %v", err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, "run.json"), d); err != nil {
		return err
	}

	summary := renderSummary(d)
	tmp := filepath.Join(dir, "SUMMARY.md.tmp")
	if err := os.WriteFile(tmp, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("failed to write run summary: %v", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "SUMMARY.md")); err != nil {
		return fmt.Errorf("failed to finalize run summary: %v", err)
	}
	return nil
}

// LoadRunDescriptor reads a persisted descriptor back.
func LoadRunDescriptor(dir string) (*RunDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, "run.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read run descriptor: %v", err)
	}
	var d RunDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode run descriptor: %v", err)
	}
	return &d, nil
}

// renderSummary builds the Markdown summary for human readers.
func renderSummary(d *RunDescriptor) string {
	var b strings.Builder
	b.WriteString("# Training Run Summary\n\n")
	fmt.Fprintf(&b, "- Final step: %d\n", d.FinalStep)
	fmt.Fprintf(&b, "- Final state: %s\n", d.FinalState)
	if d.BestCheckpoint != "" {
		fmt.Fprintf(&b, "- Best eval loss: %.4f\n", d.BestEvalLoss)
		fmt.Fprintf(&b, "- Best checkpoint: %s\n", d.BestCheckpoint)
	}
	fmt.Fprintf(&b, "- Steps recorded: %d\n", len(d.History))
	fmt.Fprintf(&b, "- Finished at: %s\n", d.FinishedAt.Format(time.RFC3339))

	if len(d.History) > 0 {
		last := d.History[len(d.History)-1]
		fmt.Fprintf(&b, "\n## Last step\n\n")
		fmt.Fprintf(&b, "- Step %d (phase %s), loss %.4f\n", last.Step, last.PhaseID, last.Loss)
	}
	return b.String()
}
