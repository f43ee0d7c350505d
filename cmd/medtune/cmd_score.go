package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"medtune/scoring"
)

var scoreFlags struct {
	media   bool
	file    string
	markers string
}

var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Score a single response with the default markers and constants",
	Long: "Score runs the keyword scorer over one response and prints the\n" +
		"per-dimension rewards, the penalty, and the resulting loss modifier.\n" +
		"Useful for tuning marker tables before a run.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreFlags.media, "media", false, "Score as a media-bearing sample")
	scoreCmd.Flags().StringVarP(&scoreFlags.file, "file", "f", "", "Read the response text from a file")
	scoreCmd.Flags().StringVar(&scoreFlags.markers, "markers", "", "Marker-table YAML, overlaid on the built-in tables")
}

func runScore(cmd *cobra.Command, args []string) error {
	var text string
	switch {
	case scoreFlags.file != "":
		data, err := os.ReadFile(scoreFlags.file)
		if err != nil {
			return fmt.Errorf("failed to read response: %v", err)
		}
		text = string(data)
	case len(args) == 1:
		text = args[0]
	default:
		return fmt.Errorf("provide the response as an argument or via --file")
	}

	markers := scoring.DefaultMarkers()
	if scoreFlags.markers != "" {
		var err error
		markers, err = scoring.LoadMarkers(scoreFlags.markers)
		if err != nil {
			return err
		}
	}

	scorer := scoring.NewKeywordScorer(markers, scoring.DefaultConfig())
	sv := scorer.Score(text, scoreFlags.media, nil)

	dims := make([]string, 0, len(sv.Rewards))
	for dim := range sv.Rewards {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	fmt.Printf("response: %d chars, media=%t\n\n", len(strings.TrimSpace(text)), scoreFlags.media)
	for _, dim := range dims {
		fmt.Printf("  reward[%s] = %.3f\n", dim, sv.Rewards[dim])
	}
	fmt.Printf("  penalty     = %.3f\n", sv.Penalty)
	fmt.Printf("  modifier    = %.3f\n", sv.Modifier)

	switch {
	case sv.Modifier < 1:
		fmt.Println("\nmodifier < 1: this response would be encouraged")
	case sv.Modifier > 1:
		fmt.Println("\nmodifier > 1: this response would be discouraged")
	default:
		fmt.Println("\nmodifier = 1: neutral")
	}
	return nil
}
