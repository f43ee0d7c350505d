package schedule

import (
	"testing"

	"medtune/scoring"
)

func twoPhases() []Phase {
	return []Phase{
		{ID: "warmup", StartStep: 1, EndStep: 5, MediaRatio: 0.2,
			Multipliers: map[string]float64{scoring.DimPrecision: 1.5}},
		{ID: "main", StartStep: 6, EndStep: 10, MediaRatio: 0.8,
			Multipliers: map[string]float64{scoring.DimGrounding: 1.2}},
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	tests := []struct {
		name     string
		phases   []Phase
		numSteps int
		wantErr  bool
	}{
		{"valid", twoPhases(), 10, false},
		{"no phases", nil, 10, true},
		{"zero steps", twoPhases(), 0, true},
		{"not starting at 1", []Phase{{ID: "a", StartStep: 2, EndStep: 10}}, 10, true},
		{"gap", []Phase{
			{ID: "a", StartStep: 1, EndStep: 4},
			{ID: "b", StartStep: 6, EndStep: 10},
		}, 10, true},
		{"overlap", []Phase{
			{ID: "a", StartStep: 1, EndStep: 6},
			{ID: "b", StartStep: 6, EndStep: 10},
		}, 10, true},
		{"inverted range", []Phase{{ID: "a", StartStep: 1, EndStep: 0}}, 10, true},
		{"ratio above 1", []Phase{{ID: "a", StartStep: 1, EndStep: 10, MediaRatio: 1.5}}, 10, true},
		{"short coverage", twoPhases(), 12, true},
	}

	for _, tt := range tests {
		_, err := NewScheduler(tt.phases, tt.numSteps)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr = %t", tt.name, err, tt.wantErr)
		}
	}
}

func TestPhaseForCoversEveryStep(t *testing.T) {
	sched, err := NewScheduler(twoPhases(), 10)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	for step := 1; step <= 10; step++ {
		p := sched.PhaseFor(step)
		if step < p.StartStep || step > p.EndStep {
			t.Errorf("step %d mapped to phase %s [%d, %d]", step, p.ID, p.StartStep, p.EndStep)
		}
	}

	// Boundaries land on the expected side.
	if p := sched.PhaseFor(5); p.ID != "warmup" {
		t.Errorf("step 5: expected warmup, got %s", p.ID)
	}
	if p := sched.PhaseFor(6); p.ID != "main" {
		t.Errorf("step 6: expected main, got %s", p.ID)
	}
}

func TestPhaseForIsIdempotent(t *testing.T) {
	sched, err := NewScheduler(twoPhases(), 10)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	for step := 1; step <= 10; step++ {
		first := sched.PhaseFor(step)
		second := sched.PhaseFor(step)
		if first.ID != second.ID || first.MediaRatio != second.MediaRatio {
			t.Errorf("step %d: repeated lookups differ: %+v vs %+v", step, first, second)
		}
	}
}

func TestPhaseForClampsOutOfRange(t *testing.T) {
	sched, err := NewScheduler(twoPhases(), 10)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	// The final phase silently extends beyond its declared upper bound.
	if p := sched.PhaseFor(500); p.ID != "main" {
		t.Errorf("step 500: expected final phase, got %s", p.ID)
	}
	if p := sched.PhaseFor(0); p.ID != "warmup" {
		t.Errorf("step 0: expected first phase, got %s", p.ID)
	}
	if p := sched.PhaseFor(-3); p.ID != "warmup" {
		t.Errorf("step -3: expected first phase, got %s", p.ID)
	}
}

func TestNewSchedulerSortsPhases(t *testing.T) {
	phases := twoPhases()
	phases[0], phases[1] = phases[1], phases[0]

	sched, err := NewScheduler(phases, 10)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if got := sched.Phases(); got[0].ID != "warmup" || got[1].ID != "main" {
		t.Errorf("phases not ordered by start step: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestDefaultPhasesAreValid(t *testing.T) {
	phases := DefaultPhases()
	sched, err := NewScheduler(phases, 2000)
	if err != nil {
		t.Fatalf("default phases invalid: %v", err)
	}

	// The default curriculum shifts emphasis from precision to grounding.
	early := sched.PhaseFor(1)
	late := sched.PhaseFor(2000)
	if early.Multipliers[scoring.DimPrecision] <= late.Multipliers[scoring.DimPrecision] {
		t.Errorf("expected precision emphasis to decrease: %f vs %f",
			early.Multipliers[scoring.DimPrecision], late.Multipliers[scoring.DimPrecision])
	}
	if early.MediaRatio >= late.MediaRatio {
		t.Errorf("expected media ratio to increase: %f vs %f", early.MediaRatio, late.MediaRatio)
	}
}
