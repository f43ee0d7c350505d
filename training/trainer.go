package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"medtune/checkpoints"
	"medtune/dataset"
	"medtune/metrics"
	"medtune/schedule"
	"medtune/scoring"
)

// RunState tracks the trainer's lifecycle.
type RunState int

const (
	StateInit RunState = iota
	StateRunning
	StateFinalizing
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Trainer drives the curriculum run end to end: phase lookup, stratified
// sampling, response scoring, the external backend update, metrics
// logging, periodic evaluation and checkpointing, and finalization.
//
// The loop is single-threaded: steps execute strictly in increasing order
// and a checkpoint at step i reflects only samples consumed at steps <= i.
// Within one step, response scoring may fan out across workers, but the
// results land in an index-addressed slice so scoring and logging order
// never depend on completion order.
type Trainer struct {
	cfg     RunConfig
	backend Backend
	scorer  scoring.Scorer

	sched       *schedule.Scheduler
	sampler     *dataset.StratifiedSampler
	evalSampler *dataset.StratifiedSampler
	ledger      *metrics.Ledger
	saver       *checkpoints.Saver
	logger      *slog.Logger

	configEcho json.RawMessage

	state          RunState
	step           int
	bestEvalLoss   float64
	bestCheckpoint string
	softWarnings   atomic.Int64
}

// NewTrainer builds a trainer over fully materialized train and held-out
// sample sets. The held-out sampler is unshuffled so evaluation batches
// are stable across runs. A nil logger falls back to slog.Default().
func NewTrainer(cfg RunConfig, backend Backend, scorer scoring.Scorer, train, heldout []dataset.Sample, logger *slog.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %v", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("a backend is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("a scorer is required")
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("training dataset is empty")
	}

	sched, err := schedule.NewScheduler(cfg.Phases, cfg.NumSteps)
	if err != nil {
		return nil, fmt.Errorf("invalid phase list: %v", err)
	}

	saver, err := checkpoints.NewSaver(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}

	echo, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config echo: %v", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Trainer{
		cfg:          cfg,
		backend:      backend,
		scorer:       scorer,
		sched:        sched,
		sampler:      dataset.NewStratifiedSampler(train, cfg.Seed, true),
		evalSampler:  dataset.NewStratifiedSampler(heldout, cfg.Seed+1, false),
		ledger:       metrics.NewLedger(),
		saver:        saver,
		logger:       logger,
		configEcho:   echo,
		state:        StateInit,
		bestEvalLoss: math.Inf(1),
	}, nil
}

// State returns the trainer's current lifecycle state.
func (t *Trainer) State() RunState { return t.state }

// Step returns the last step the trainer worked on.
func (t *Trainer) Step() int { return t.step }

// BestEvalLoss returns the best evaluation loss seen so far (+Inf before
// the first evaluation).
func (t *Trainer) BestEvalLoss() float64 { return t.bestEvalLoss }

// Ledger exposes the metrics history for reporting.
func (t *Trainer) Ledger() *metrics.Ledger { return t.ledger }

// SoftWarnings returns how many samples were soft-scored as empty because
// their content was missing or unparseable.
func (t *Trainer) SoftWarnings() int { return int(t.softWarnings.Load()) }

// Run executes the configured number of steps. It returns after
// finalization: on normal completion, on cooperative cancellation through
// ctx, or after an unrecoverable backend failure. Metrics collected so
// far are always flushed before an error is surfaced.
func (t *Trainer) Run(ctx context.Context) error {
	t.state = StateRunning

	var bar *ProgressBar
	if t.cfg.Progress {
		fmt.Println(RunBanner(t.cfg, t.backend.Name()))
		bar = NewProgressBar("training", t.cfg.NumSteps)
	}

	var runErr error

steps:
	for step := 1; step <= t.cfg.NumSteps; step++ {
		// Cooperative cancellation, checked between steps.
		if ctx.Err() != nil {
			t.logger.Info("run cancelled", "step", step-1)
			break
		}
		t.step = step

		phase := t.sched.PhaseFor(step)
		batch := t.sampler.NextBatch(t.cfg.BatchSize, phase.MediaRatio)
		modifiers, stepValues := t.scoreBatch(ctx, batch, phase)

		loss, err := t.updateWithRetry(ctx, batch, modifiers)
		if err != nil {
			if ctx.Err() != nil {
				t.logger.Info("run cancelled during update", "step", step)
				break steps
			}
			runErr = fmt.Errorf("backend update failed at step %d: %v", step, err)
			break steps
		}

		t.ledger.Append(metrics.Record{
			Step:    step,
			PhaseID: phase.ID,
			Loss:    loss,
			Values:  stepValues,
		})

		if bar != nil {
			bar.Update(step, map[string]float64{"loss": loss, "modifier": stepValues["modifier"]})
		}
		if step%t.cfg.LogSteps == 0 {
			t.logger.Info("train",
				"step", step,
				"phase", phase.ID,
				"loss", loss,
				"modifier", stepValues["modifier"])
		}

		if step%t.cfg.EvalSteps == 0 {
			evalLoss, evalValues := t.evaluate(step)
			t.logger.Info("eval", "step", step, "loss", evalLoss)
			if evalLoss < t.bestEvalLoss {
				t.bestEvalLoss = evalLoss
				if dir := t.saveCheckpoint(step, evalValues, true); dir != "" {
					t.bestCheckpoint = dir
				}
			}
		}

		if step%t.cfg.SaveSteps == 0 {
			t.saveCheckpoint(step, t.ledger.MeanOverLast(t.cfg.LogSteps), false)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	t.state = StateFinalizing
	finalErr := t.finalize(runErr)

	if runErr != nil {
		t.state = StateFailed
		return runErr
	}
	// A run whose descriptor never landed is not done: callers checking
	// State() must not mistake it for a fully persisted run.
	if finalErr != nil {
		t.state = StateFailed
		return finalErr
	}
	t.state = StateDone

	if t.cfg.Progress {
		fmt.Println(SummaryPanel(t.step, t.bestEvalLoss, t.cfg.OutputDir))
	}
	return nil
}

// scoreBatch computes one loss modifier per sample plus the averaged
// per-dimension metrics for the step. Scoring fans out over at most
// ScoreWorkers goroutines; results are written by index, preserving batch
// order regardless of completion order.
func (t *Trainer) scoreBatch(ctx context.Context, batch []dataset.Sample, phase schedule.Phase) ([]float64, map[string]float64) {
	vectors := make([]scoring.ScoreVector, len(batch))

	if t.cfg.ScoreWorkers > 1 && len(batch) > 1 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(t.cfg.ScoreWorkers)
		for i, sample := range batch {
			i, sample := i, sample
			g.Go(func() error {
				vectors[i] = t.scoreSample(sample, phase)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, sample := range batch {
			vectors[i] = t.scoreSample(sample, phase)
		}
	}

	modifiers := make([]float64, len(batch))
	values := make(map[string]float64)
	for i, v := range vectors {
		modifiers[i] = v.Modifier
		for dim, r := range v.Rewards {
			values["reward_"+dim] += r
		}
		values["penalty"] += v.Penalty
		values["modifier"] += v.Modifier
	}
	if n := float64(len(vectors)); n > 0 {
		for k := range values {
			values[k] /= n
		}
	}
	return modifiers, values
}

// scoreSample scores every assistant turn of a sample and averages the
// results. A sample with no assistant content degrades to empty-string
// scoring and is counted as a soft warning, never an error.
func (t *Trainer) scoreSample(sample dataset.Sample, phase schedule.Phase) scoring.ScoreVector {
	turns := sample.AssistantTurns()
	if len(turns) == 0 {
		t.softWarnings.Add(1)
		t.logger.Warn("sample has no assistant content, scoring as empty", "sample", sample.ID)
		return t.scorer.Score("", sample.MediaPresent, phase.Multipliers)
	}

	vectors := make([]scoring.ScoreVector, 0, len(turns))
	for _, text := range turns {
		vectors = append(vectors, t.scorer.Score(text, sample.MediaPresent, phase.Multipliers))
	}
	return scoring.AverageVectors(vectors)
}

// updateWithRetry calls the backend with a bounded per-call timeout,
// retrying up to MaxRetries times with a short backoff. A timeout is
// treated identically to a backend error.
func (t *Trainer) updateWithRetry(ctx context.Context, batch []dataset.Sample, modifiers []float64) (float64, error) {
	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		callCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.UpdateTimeout))
		loss, err := t.backend.Update(callCtx, batch, modifiers)
		cancel()
		if err == nil {
			return loss, nil
		}
		lastErr = err
		t.logger.Warn("backend update failed",
			"step", t.step, "attempt", attempt+1, "error", err)

		if attempt < t.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
			}
		}
	}
	return 0, lastErr
}

// evaluate runs the scoring pipeline over held-out batches with modifiers
// computed for diagnostics only; the backend is never updated. The
// evaluation loss is the mean modifier: lower means the responses earn
// more reward than penalty under the current phase weighting.
func (t *Trainer) evaluate(step int) (float64, map[string]float64) {
	phase := t.sched.PhaseFor(step)

	numBatches := t.cfg.EvalBatches
	if available := t.evalSampler.Len() / t.cfg.BatchSize; available > 0 && available < numBatches {
		numBatches = available
	}
	if t.evalSampler.Len() == 0 {
		return math.Inf(1), map[string]float64{}
	}

	sums := make(map[string]float64)
	lossSum := 0.0
	batches := 0
	for i := 0; i < numBatches; i++ {
		batch := t.evalSampler.NextBatch(t.cfg.BatchSize, phase.MediaRatio)
		if len(batch) == 0 {
			break
		}
		_, values := t.scoreBatch(context.Background(), batch, phase)
		lossSum += values["modifier"]
		for k, v := range values {
			sums[k] += v
		}
		batches++
	}
	if batches == 0 {
		return math.Inf(1), map[string]float64{}
	}

	for k := range sums {
		sums[k] /= float64(batches)
	}
	evalLoss := lossSum / float64(batches)
	sums["eval_loss"] = evalLoss
	return evalLoss, sums
}

// saveCheckpoint persists a state descriptor plus the metrics history so
// far. A write failure during the run is logged and non-fatal; the run
// keeps going with the last good checkpoint intact on disk.
func (t *Trainer) saveCheckpoint(step int, values map[string]float64, isBest bool) string {
	state := &checkpoints.State{
		Step:    step,
		IsBest:  isBest,
		Metrics: values,
		Config:  t.configEcho,
	}

	dir, err := t.saver.Save(state)
	if err != nil {
		t.logger.Error("checkpoint write failed", "step", step, "best", isBest, "error", err)
		return ""
	}

	if err := t.ledger.WriteJSON(filepath.Join(dir, "metrics.json")); err != nil {
		t.logger.Error("checkpoint metrics write failed", "step", step, "error", err)
	}

	t.logger.Info("checkpoint saved", "step", step, "best", isBest, "dir", dir)
	return dir
}

// finalize flushes the metrics history and writes the run descriptor.
// Each persistence step is retried once before the error is surfaced.
func (t *Trainer) finalize(runErr error) error {
	historyPath := filepath.Join(t.cfg.OutputDir, "metrics_history.json")
	if err := retryOnce(func() error { return t.ledger.WriteJSON(historyPath) }); err != nil {
		t.logger.Error("failed to flush metrics history", "error", err)
		return err
	}

	finalState := "completed"
	if runErr != nil {
		finalState = "failed"
	} else if t.step < t.cfg.NumSteps {
		finalState = "cancelled"
	}

	bestLoss := t.bestEvalLoss
	if math.IsInf(bestLoss, 1) {
		bestLoss = 0
	}

	descriptor := &checkpoints.RunDescriptor{
		Config:         t.configEcho,
		FinalStep:      t.step,
		FinalState:     finalState,
		BestEvalLoss:   bestLoss,
		BestCheckpoint: t.bestCheckpoint,
		History:        t.ledger.All(),
	}
	if err := retryOnce(func() error {
		return checkpoints.WriteRunDescriptor(t.cfg.OutputDir, descriptor)
	}); err != nil {
		t.logger.Error("failed to write run descriptor", "error", err)
		return err
	}

	t.logger.Info("run finalized",
		"state", finalState,
		"final_step", t.step,
		"records", t.ledger.Len(),
		"soft_warnings", t.SoftWarnings())
	return nil
}

func retryOnce(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	return fn()
}
