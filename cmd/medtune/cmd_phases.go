package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"medtune/schedule"
	"medtune/training"
)

var phasesFlags struct {
	configPath string
}

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Print the curriculum phase table a config resolves to",
	RunE:  runPhases,
}

func init() {
	phasesCmd.Flags().StringVarP(&phasesFlags.configPath, "config", "c", "", "Run config YAML (defaults apply when omitted)")
}

func runPhases(cmd *cobra.Command, args []string) error {
	cfg := training.DefaultRunConfig()
	if phasesFlags.configPath != "" {
		var err error
		cfg, err = training.LoadRunConfig(phasesFlags.configPath)
		if err != nil {
			return err
		}
	}

	sched, err := schedule.NewScheduler(cfg.Phases, cfg.NumSteps)
	if err != nil {
		return fmt.Errorf("invalid phase list: %v", err)
	}

	fmt.Printf("%-18s %-14s %-12s %s\n", "PHASE", "STEPS", "MEDIA RATIO", "MULTIPLIERS")
	for _, p := range sched.Phases() {
		dims := make([]string, 0, len(p.Multipliers))
		for dim := range p.Multipliers {
			dims = append(dims, dim)
		}
		sort.Strings(dims)

		mults := ""
		for i, dim := range dims {
			if i > 0 {
				mults += "  "
			}
			mults += fmt.Sprintf("%s=%.2f", dim, p.Multipliers[dim])
		}
		fmt.Printf("%-18s %5d-%-8d %-12.2f %s\n", p.ID, p.StartStep, p.EndStep, p.MediaRatio, mults)
	}
	return nil
}
