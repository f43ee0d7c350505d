package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtune/checkpoints"
	"medtune/dataset"
	"medtune/schedule"
	"medtune/scoring"
)

const testResponse = "I understand your concern, and it is completely normal to feel " +
	"worried. A fasting glucose between 3.9 and 6.1 mmol/L is within the reference " +
	"range. First, repeat the measurement; second, discuss the result with your " +
	"physician. Please don't hesitate to reach out if anything is unclear."

func testSamples(media, text int) []dataset.Sample {
	samples := make([]dataset.Sample, 0, media+text)
	for i := 0; i < media; i++ {
		samples = append(samples, dataset.Sample{
			ID:           fmt.Sprintf("m%d", i),
			MediaPresent: true,
			Turns: []dataset.Turn{
				{Role: "user", Content: "what does this show?", Media: "scan.png"},
				{Role: "assistant", Content: "The image shows no acute findings. " + testResponse},
			},
		})
	}
	for i := 0; i < text; i++ {
		samples = append(samples, dataset.Sample{
			ID: fmt.Sprintf("t%d", i),
			Turns: []dataset.Turn{
				{Role: "user", Content: "is this value normal?"},
				{Role: "assistant", Content: testResponse},
			},
		})
	}
	return samples
}

func testRunConfig(t *testing.T) RunConfig {
	t.Helper()
	cfg := DefaultRunConfig()
	cfg.NumSteps = 10
	cfg.BatchSize = 4
	cfg.EvalSteps = 5
	cfg.SaveSteps = 5
	cfg.LogSteps = 5
	cfg.EvalBatches = 2
	cfg.ScoreWorkers = 2
	cfg.Progress = false
	cfg.CheckpointDir = filepath.Join(t.TempDir(), "checkpoints")
	cfg.OutputDir = t.TempDir()
	cfg.Phases = []schedule.Phase{
		{ID: "warmup", StartStep: 1, EndStep: 5, MediaRatio: 0.25,
			Multipliers: map[string]float64{scoring.DimPrecision: 1.5}},
		{ID: "main", StartStep: 6, EndStep: 10, MediaRatio: 0.5,
			Multipliers: map[string]float64{scoring.DimGrounding: 1.2}},
	}
	return cfg
}

func newTestTrainer(t *testing.T, cfg RunConfig, backend Backend) *Trainer {
	t.Helper()
	samples := testSamples(6, 10)
	trainer, err := NewTrainer(cfg, backend, scoring.NewDefaultScorer(), samples, samples, discardLogger())
	require.NoError(t, err)
	return trainer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrainerRunCompletes(t *testing.T) {
	cfg := testRunConfig(t)
	trainer := newTestTrainer(t, cfg, NewSimulatedBackend(cfg.Seed))

	require.NoError(t, trainer.Run(context.Background()))

	assert.Equal(t, StateDone, trainer.State())
	assert.Equal(t, cfg.NumSteps, trainer.Step())
	assert.Equal(t, cfg.NumSteps, trainer.Ledger().Len())
	assert.Less(t, trainer.BestEvalLoss(), math.Inf(1))

	// Periodic and best checkpoints on disk.
	for _, dir := range []string{"step_5", "step_10", "best"} {
		_, err := os.Stat(filepath.Join(cfg.CheckpointDir, dir, "state.json"))
		assert.NoError(t, err, "missing checkpoint %s", dir)
	}

	// Finalization artifacts.
	_, err := os.Stat(filepath.Join(cfg.OutputDir, "metrics_history.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "SUMMARY.md"))
	assert.NoError(t, err)

	descriptor, err := checkpoints.LoadRunDescriptor(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, "completed", descriptor.FinalState)
	assert.Equal(t, cfg.NumSteps, descriptor.FinalStep)
	assert.Len(t, descriptor.History, cfg.NumSteps)
}

func TestTrainerRecordsPhaseTransitions(t *testing.T) {
	cfg := testRunConfig(t)
	trainer := newTestTrainer(t, cfg, NewSimulatedBackend(cfg.Seed))

	require.NoError(t, trainer.Run(context.Background()))

	for _, r := range trainer.Ledger().All() {
		want := "warmup"
		if r.Step > 5 {
			want = "main"
		}
		assert.Equal(t, want, r.PhaseID, "step %d", r.Step)
	}
}

type failingBackend struct {
	calls atomic.Int32
}

func (b *failingBackend) Update(ctx context.Context, batch []dataset.Sample, modifiers []float64) (float64, error) {
	b.calls.Add(1)
	return 0, errors.New("engine unreachable")
}

func (b *failingBackend) Name() string { return "failing" }

func TestTrainerFailsAfterRetriesExhausted(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.MaxRetries = 2
	backend := &failingBackend{}
	trainer := newTestTrainer(t, cfg, backend)

	err := trainer.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, trainer.State())
	assert.Equal(t, int32(cfg.MaxRetries+1), backend.calls.Load())
	assert.Equal(t, 0, trainer.Ledger().Len())

	// Metrics and the descriptor are still flushed on failure.
	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, "metrics_history.json"))
	assert.NoError(t, statErr)

	descriptor, loadErr := checkpoints.LoadRunDescriptor(cfg.OutputDir)
	require.NoError(t, loadErr)
	assert.Equal(t, "failed", descriptor.FinalState)
}

type slowBackend struct{}

func (slowBackend) Update(ctx context.Context, batch []dataset.Sample, modifiers []float64) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (slowBackend) Name() string { return "slow" }

func TestTrainerTreatsTimeoutAsFailure(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.MaxRetries = 0
	cfg.UpdateTimeout = Duration(10 * time.Millisecond)
	trainer := newTestTrainer(t, cfg, slowBackend{})

	err := trainer.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, trainer.State())
}

func TestTrainerCheckpointFailureIsNonFatal(t *testing.T) {
	cfg := testRunConfig(t)
	trainer := newTestTrainer(t, cfg, NewSimulatedBackend(cfg.Seed))

	// Occupy every checkpoint target with a regular file so each save
	// fails. The run must ride through all of them.
	for _, name := range []string{"step_5", "step_10", "best"} {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.CheckpointDir, name), nil, 0o644))
	}

	require.NoError(t, trainer.Run(context.Background()))
	assert.Equal(t, StateDone, trainer.State())
	assert.Equal(t, cfg.NumSteps, trainer.Ledger().Len())

	descriptor, err := checkpoints.LoadRunDescriptor(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, "completed", descriptor.FinalState)
	assert.Empty(t, descriptor.BestCheckpoint)
}

func TestTrainerFinalizeFailureReportsFailed(t *testing.T) {
	cfg := testRunConfig(t)
	// Occupy the output path with a regular file so finalization cannot
	// create the run directory.
	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(out, nil, 0o644))
	cfg.OutputDir = out

	trainer := newTestTrainer(t, cfg, NewSimulatedBackend(cfg.Seed))

	err := trainer.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, trainer.State())
	// Every step ran; only persistence failed.
	assert.Equal(t, cfg.NumSteps, trainer.Step())
	assert.Equal(t, cfg.NumSteps, trainer.Ledger().Len())
}

func TestRetryOnce(t *testing.T) {
	calls := 0
	err := retryOnce(func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryOnce(func() error {
		calls++
		return errors.New("persistent")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestTrainerCancellationFinalizesCleanly(t *testing.T) {
	cfg := testRunConfig(t)
	trainer := newTestTrainer(t, cfg, NewSimulatedBackend(cfg.Seed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, trainer.Run(ctx))
	assert.Equal(t, StateDone, trainer.State())

	descriptor, err := checkpoints.LoadRunDescriptor(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", descriptor.FinalState)
	assert.Less(t, descriptor.FinalStep, cfg.NumSteps)
}

func TestTrainerCountsSoftWarnings(t *testing.T) {
	cfg := testRunConfig(t)
	samples := testSamples(6, 9)
	samples = append(samples, dataset.Sample{
		ID:    "no-assistant",
		Turns: []dataset.Turn{{Role: "user", Content: "hello?"}},
	})

	trainer, err := NewTrainer(cfg, NewSimulatedBackend(cfg.Seed), scoring.NewDefaultScorer(),
		samples, samples, discardLogger())
	require.NoError(t, err)

	require.NoError(t, trainer.Run(context.Background()))
	assert.Greater(t, trainer.SoftWarnings(), 0)
}

func TestNewTrainerRejectsBadInputs(t *testing.T) {
	cfg := testRunConfig(t)
	scorer := scoring.NewDefaultScorer()
	samples := testSamples(2, 2)
	logger := discardLogger()

	_, err := NewTrainer(cfg, nil, scorer, samples, samples, logger)
	assert.Error(t, err)

	_, err = NewTrainer(cfg, NewSimulatedBackend(1), nil, samples, samples, logger)
	assert.Error(t, err)

	_, err = NewTrainer(cfg, NewSimulatedBackend(1), scorer, nil, samples, logger)
	assert.Error(t, err)

	bad := cfg
	bad.BatchSize = 0
	_, err = NewTrainer(bad, NewSimulatedBackend(1), scorer, samples, samples, logger)
	assert.Error(t, err)
}

func TestSimulatedBackendIsDeterministic(t *testing.T) {
	batch := testSamples(1, 3)
	modifiers := []float64{0.8, 1.0, 1.2, 0.9}

	a, err := NewSimulatedBackend(7).Update(context.Background(), batch, modifiers)
	require.NoError(t, err)
	b, err := NewSimulatedBackend(7).Update(context.Background(), batch, modifiers)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSimulatedBackend(7).Update(ctx, batch, modifiers)
	assert.Error(t, err)
}
