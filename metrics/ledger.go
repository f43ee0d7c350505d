package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is one per-step entry in the ledger. Values carries the
// per-dimension reward/penalty metrics alongside the base loss.
type Record struct {
	Step    int                `json:"step"`
	PhaseID string             `json:"phase_id"`
	Loss    float64            `json:"loss"`
	Values  map[string]float64 `json:"values,omitempty"`
}

// Ledger is an append-only, ordered log of per-step metrics. Once written
// a record is never mutated; readers get copies.
type Ledger struct {
	mu      sync.RWMutex
	records []Record
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds one record to the end of the ledger.
func (l *Ledger) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Range returns the records with step in [fromStep, toStep], in append
// order.
func (l *Ledger) Range(fromStep, toStep int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if r.Step >= fromStep && r.Step <= toStep {
			out = append(out, r)
		}
	}
	return out
}

// MeanOverLast averages the loss and every metric value over the last n
// records (or all records when fewer exist). The loss mean is reported
// under the "loss" key.
func (l *Ledger) MeanOverLast(n int) map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.records) == 0 {
		return map[string]float64{}
	}
	if n > len(l.records) {
		n = len(l.records)
	}

	window := l.records[len(l.records)-n:]
	sums := make(map[string]float64)
	for _, r := range window {
		sums["loss"] += r.Loss
		for k, v := range r.Values {
			sums[k] += v
		}
	}
	for k := range sums {
		sums[k] /= float64(n)
	}
	return sums
}

// All returns a copy of the full history in append order.
func (l *Ledger) All() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// WriteJSON persists the full history verbatim. The file is written to a
// temporary name and renamed into place so a failed write never leaves a
// truncated history visible.
func (l *Ledger) WriteJSON(path string) error {
	records := l.All()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metrics history: %v", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %v", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics history: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize metrics history: %v", err)
	}
	return nil
}

// ReadJSON loads a persisted history, for reporting and tests.
func ReadJSON(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics history: %v", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode metrics history: %v", err)
	}
	return records, nil
}
