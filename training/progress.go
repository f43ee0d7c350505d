package training

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ProgressBar renders an inline, carriage-return progress line for the
// step loop, with elapsed/ETA timing, step rate, and trailing metrics.
type ProgressBar struct {
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
}

// NewProgressBar creates a progress bar over total steps.
func NewProgressBar(description string, total int) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		metrics:     make(map[string]float64),
	}
}

// Update advances the bar to step and refreshes the trailing metrics.
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = metrics
	pb.render()
}

// Finish completes the bar and moves to a fresh line.
func (pb *ProgressBar) Finish() {
	pb.render()
	fmt.Println()
}

func (pb *ProgressBar) render() {
	percentage := float64(pb.current) / float64(pb.total)
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			eta = time.Duration(float64(elapsed)/percentage) - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta))
	if rate > 0 {
		line += fmt.Sprintf(", %.2fstep/s", rate)
	}

	// Stable metric ordering keeps the line from jittering.
	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(", %s=%.3f", k, pb.metrics[k])
	}
	line += "]"

	fmt.Print(line)
}

// formatDuration formats a duration as MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("36")).
			Padding(0, 2)

	panelTitleStyle = lipgloss.NewStyle().Bold(true)
)

// RunBanner renders the start-of-run panel describing the configuration.
func RunBanner(cfg RunConfig, backendName string) string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Curriculum fine-tuning run"))
	fmt.Fprintf(&b, "\nsteps: %d  batch: %d  backend: %s", cfg.NumSteps, cfg.BatchSize, backendName)
	fmt.Fprintf(&b, "\nphases: %d  eval every %d  save every %d", len(cfg.Phases), cfg.EvalSteps, cfg.SaveSteps)
	return panelStyle.Render(b.String())
}

// SummaryPanel renders the end-of-run panel.
func SummaryPanel(finalStep int, bestEvalLoss float64, outputDir string) string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Run complete"))
	fmt.Fprintf(&b, "\nfinal step: %d", finalStep)
	if !math.IsInf(bestEvalLoss, 1) && bestEvalLoss > 0 {
		fmt.Fprintf(&b, "\nbest eval loss: %.4f", bestEvalLoss)
	}
	fmt.Fprintf(&b, "\noutput: %s", outputDir)
	return panelStyle.Render(b.String())
}
