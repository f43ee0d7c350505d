package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"medtune/dataset"
	"medtune/scoring"
	"medtune/training"
)

var trainFlags struct {
	configPath string
	trainData  string
	evalData   string
	markers    string
	steps      int
	batchSize  int
	seed       int64
	ckptDir    string
	outputDir  string
	quiet      bool
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run a curriculum fine-tuning loop over a JSONL dataset",
	RunE:  runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVarP(&trainFlags.configPath, "config", "c", "", "Run config YAML (defaults apply when omitted)")
	f.StringVar(&trainFlags.trainData, "data", "", "Training dataset (JSONL, one conversation per line)")
	f.StringVar(&trainFlags.evalData, "eval-data", "", "Held-out dataset for evaluation (JSONL)")
	f.StringVar(&trainFlags.markers, "markers", "", "Marker-table YAML, overlaid on the built-in tables")
	f.IntVar(&trainFlags.steps, "steps", 0, "Override num_steps")
	f.IntVar(&trainFlags.batchSize, "batch-size", 0, "Override batch_size")
	f.Int64Var(&trainFlags.seed, "seed", 0, "Override sampling seed")
	f.StringVar(&trainFlags.ckptDir, "checkpoint-dir", "", "Override checkpoint directory")
	f.StringVar(&trainFlags.outputDir, "output-dir", "", "Override run output directory")
	f.BoolVar(&trainFlags.quiet, "quiet", false, "Disable the progress bar and banner")
	_ = trainCmd.MarkFlagRequired("data")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := training.DefaultRunConfig()
	if trainFlags.configPath != "" {
		var err error
		cfg, err = training.LoadRunConfig(trainFlags.configPath)
		if err != nil {
			return err
		}
	}
	if trainFlags.steps > 0 {
		cfg.NumSteps = trainFlags.steps
	}
	if trainFlags.batchSize > 0 {
		cfg.BatchSize = trainFlags.batchSize
	}
	if trainFlags.seed != 0 {
		cfg.Seed = trainFlags.seed
	}
	if trainFlags.ckptDir != "" {
		cfg.CheckpointDir = trainFlags.ckptDir
	}
	if trainFlags.outputDir != "" {
		cfg.OutputDir = trainFlags.outputDir
	}
	if trainFlags.markers != "" {
		cfg.MarkersFile = trainFlags.markers
	}
	if trainFlags.quiet {
		cfg.Progress = false
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	train, skipped, err := dataset.LoadJSONL(trainFlags.trainData)
	if err != nil {
		return err
	}
	if skipped > 0 {
		logger.Warn("skipped malformed samples", "file", trainFlags.trainData, "count", skipped)
	}

	heldout := train
	if trainFlags.evalData != "" {
		heldout, skipped, err = dataset.LoadJSONL(trainFlags.evalData)
		if err != nil {
			return err
		}
		if skipped > 0 {
			logger.Warn("skipped malformed samples", "file", trainFlags.evalData, "count", skipped)
		}
	}

	markers := scoring.DefaultMarkers()
	if cfg.MarkersFile != "" {
		markers, err = scoring.LoadMarkers(cfg.MarkersFile)
		if err != nil {
			return err
		}
	}

	scorer := scoring.NewKeywordScorer(markers, cfg.Scoring)
	backend := training.NewSimulatedBackend(cfg.Seed)

	trainer, err := training.NewTrainer(cfg, backend, scorer, train, heldout, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trainer.Run(ctx); err != nil {
		return fmt.Errorf("run ended in state %s: %v", trainer.State(), err)
	}
	return nil
}
