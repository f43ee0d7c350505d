package schedule

import (
	"fmt"
	"sort"

	"medtune/scoring"
)

// Phase is one contiguous range of training steps sharing a fixed
// curriculum weighting and sampling ratio. Phase lists are data: a run
// loads them once from configuration and never mutates them.
type Phase struct {
	ID          string             `yaml:"id" json:"id"`
	StartStep   int                `yaml:"start_step" json:"start_step"`
	EndStep     int                `yaml:"end_step" json:"end_step"`
	Multipliers map[string]float64 `yaml:"multipliers" json:"multipliers"`
	MediaRatio  float64            `yaml:"media_ratio" json:"media_ratio"`
}

// Scheduler maps a global step number to its curriculum phase. It is a
// pure lookup: no state changes after construction, identical inputs give
// identical results.
type Scheduler struct {
	phases   []Phase
	numSteps int
}

// NewScheduler validates that the phases form an ordered partition of
// [1, numSteps] with no gap or overlap, and that every media ratio is in
// [0, 1].
func NewScheduler(phases []Phase, numSteps int) (*Scheduler, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("at least one phase is required")
	}
	if numSteps <= 0 {
		return nil, fmt.Errorf("numSteps must be positive, got %d", numSteps)
	}

	ordered := make([]Phase, len(phases))
	copy(ordered, phases)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartStep < ordered[j].StartStep
	})

	if ordered[0].StartStep != 1 {
		return nil, fmt.Errorf("phase %q: first phase must start at step 1, got %d",
			ordered[0].ID, ordered[0].StartStep)
	}

	for i, p := range ordered {
		if p.EndStep < p.StartStep {
			return nil, fmt.Errorf("phase %q: end step %d before start step %d",
				p.ID, p.EndStep, p.StartStep)
		}
		if p.MediaRatio < 0 || p.MediaRatio > 1 {
			return nil, fmt.Errorf("phase %q: media ratio %g outside [0, 1]", p.ID, p.MediaRatio)
		}
		if i > 0 && p.StartStep != ordered[i-1].EndStep+1 {
			return nil, fmt.Errorf("phase %q: starts at step %d, expected %d (gap or overlap after %q)",
				p.ID, p.StartStep, ordered[i-1].EndStep+1, ordered[i-1].ID)
		}
	}

	if last := ordered[len(ordered)-1]; last.EndStep != numSteps {
		return nil, fmt.Errorf("phase %q: phases cover [1, %d] but the run has %d steps",
			last.ID, last.EndStep, numSteps)
	}

	return &Scheduler{phases: ordered, numSteps: numSteps}, nil
}

// PhaseFor returns the phase containing step. Steps below 1 map to the
// first phase; the final phase silently extends to cover any step beyond
// its declared upper bound. O(log n) in the number of phases.
func (s *Scheduler) PhaseFor(step int) Phase {
	if step < 1 {
		return s.phases[0]
	}

	i := sort.Search(len(s.phases), func(i int) bool {
		return s.phases[i].EndStep >= step
	})
	if i == len(s.phases) {
		return s.phases[len(s.phases)-1]
	}
	return s.phases[i]
}

// Phases returns the ordered phase list.
func (s *Scheduler) Phases() []Phase {
	out := make([]Phase, len(s.phases))
	copy(out, s.phases)
	return out
}

// NumSteps returns the declared run length the phases partition.
func (s *Scheduler) NumSteps() int {
	return s.numSteps
}

// DefaultPhases returns the built-in three-phase curriculum over 2000
// steps: early emphasis on factual precision, then tone balance, then
// media grounding.
func DefaultPhases() []Phase {
	return []Phase{
		{
			ID:        "precision-focus",
			StartStep: 1,
			EndStep:   1000,
			Multipliers: map[string]float64{
				scoring.DimPrecision: 1.5,
				scoring.DimEmpathy:   0.7,
				scoring.DimGrounding: 0.5,
			},
			MediaRatio: 0.10,
		},
		{
			ID:        "empathy-blend",
			StartStep: 1001,
			EndStep:   1600,
			Multipliers: map[string]float64{
				scoring.DimPrecision: 1.2,
				scoring.DimEmpathy:   1.3,
				scoring.DimGrounding: 0.6,
			},
			MediaRatio: 0.15,
		},
		{
			ID:        "grounding-push",
			StartStep: 1601,
			EndStep:   2000,
			Multipliers: map[string]float64{
				scoring.DimPrecision: 1.0,
				scoring.DimEmpathy:   1.0,
				scoring.DimGrounding: 1.2,
			},
			MediaRatio: 0.50,
		},
	}
}
