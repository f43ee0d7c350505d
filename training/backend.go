package training

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"medtune/dataset"
)

// Backend is the external model-update mechanism. The loop treats it as
// opaque: it hands over the batch with one loss modifier per sample and
// consumes the returned base loss. Implementations are selected once at
// run construction; the per-step logic never branches on which one is in
// use.
type Backend interface {
	// Update applies one training step and returns the base loss. It must
	// respect ctx cancellation; the loop enforces a bounded timeout and
	// treats a timeout like any other backend error.
	Update(ctx context.Context, batch []dataset.Sample, modifiers []float64) (float64, error)

	// Name identifies the backend for logging.
	Name() string
}

// SimulatedBackend stands in when the real training engine is
// unavailable: it draws a base loss uniformly from [0.3, 1.2) and scales
// it by the mean modifier, which keeps the curriculum dynamics visible in
// the metrics without touching any model weights.
type SimulatedBackend struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedBackend creates a simulated backend with a fixed seed.
func NewSimulatedBackend(seed int64) *SimulatedBackend {
	return &SimulatedBackend{rng: rand.New(rand.NewSource(seed))}
}

// Update implements Backend.
func (b *SimulatedBackend) Update(ctx context.Context, batch []dataset.Sample, modifiers []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, fmt.Errorf("empty batch")
	}

	b.mu.Lock()
	base := 0.3 + b.rng.Float64()*0.9
	b.mu.Unlock()

	mean := 1.0
	if len(modifiers) > 0 {
		sum := 0.0
		for _, m := range modifiers {
			sum += m
		}
		mean = sum / float64(len(modifiers))
	}

	return base * mean, nil
}

// Name implements Backend.
func (b *SimulatedBackend) Name() string {
	return "simulated"
}
