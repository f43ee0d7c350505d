package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Turn is a single message in a conversation. Media holds an opaque
// reference (path or URL) to auxiliary media attached to the turn, empty
// for text-only turns.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Media   string `json:"media,omitempty"`
}

// Sample is one conversation. Samples are immutable once loaded.
type Sample struct {
	ID           string `json:"id"`
	Turns        []Turn `json:"messages"`
	MediaPresent bool   `json:"media_present"`
}

// AssistantTurns returns the content of every assistant turn, in order.
// A sample with no assistant turn yields an empty slice; the caller scores
// it as an empty response.
func (s Sample) AssistantTurns() []string {
	var texts []string
	for _, turn := range s.Turns {
		if turn.Role == "assistant" {
			texts = append(texts, turn.Content)
		}
	}
	return texts
}

// hasMedia reports whether any turn carries a media reference.
func (s Sample) hasMedia() bool {
	for _, turn := range s.Turns {
		if turn.Media != "" {
			return true
		}
	}
	return false
}

// Partition splits samples into the media-bearing pool and the text-only
// pool. The two pools are disjoint and together cover the input.
func Partition(samples []Sample) (media, text []Sample) {
	for _, s := range samples {
		if s.MediaPresent {
			media = append(media, s)
		} else {
			text = append(text, s)
		}
	}
	return media, text
}

// LoadJSONL reads one conversation per line from a JSONL file. Blank lines
// are ignored. A line that fails to parse, or a conversation with no turns,
// is skipped and counted rather than failing the load; the caller reports
// the count as a warning.
func LoadJSONL(path string) (samples []Sample, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open dataset: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var s Sample
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			skipped++
			continue
		}
		if len(s.Turns) == 0 {
			skipped++
			continue
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("line-%d", lineNo)
		}
		s.MediaPresent = s.hasMedia()
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read dataset: %v", err)
	}

	return samples, skipped, nil
}
