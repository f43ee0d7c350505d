// medtune drives curriculum-based fine-tuning runs for a conversational
// assistant: phase-scheduled sampling, multi-dimensional response scoring,
// and the checkpoint/evaluation loop around an external training backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "medtune",
	Short: "Curriculum fine-tuning orchestrator for a medical conversational assistant",
	Long: "Medtune schedules a fine-tuning run through curriculum phases,\n" +
		"samples conversations at each phase's media ratio, scores candidate\n" +
		"responses along precision/empathy/grounding, and hands loss modifiers\n" +
		"to the training backend.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(phasesCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
