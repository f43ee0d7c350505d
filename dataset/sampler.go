package dataset

import (
	"math"
	"math/rand"
	"sync"
)

// StratifiedSampler draws fixed-size batches from the media pool and the
// text pool at a target ratio, without replacement within an epoch. All
// cursor state is owned by the instance so independent runs can coexist.
//
// The sampler is driven by a single training loop; the mutex only makes a
// reshuffle atomic with respect to an in-flight NextBatch from another
// goroutine (e.g. an evaluation sampler shared with a reporting hook).
type StratifiedSampler struct {
	media []Sample
	text  []Sample

	mediaIdx []int
	textIdx  []int
	mediaPos int
	textPos  int

	shuffle bool
	rng     *rand.Rand
	mu      sync.Mutex
}

// NewStratifiedSampler partitions samples into the two pools and prepares
// shuffled index orderings. The seed fixes the shuffle order so a run is
// reproducible. With shuffle false (held-out evaluation) pools are
// traversed in load order.
func NewStratifiedSampler(samples []Sample, seed int64, shuffle bool) *StratifiedSampler {
	media, text := Partition(samples)

	s := &StratifiedSampler{
		media:   media,
		text:    text,
		shuffle: shuffle,
		rng:     rand.New(rand.NewSource(seed)),
	}
	s.reshuffle()
	return s
}

// Len returns the total number of samples across both pools.
func (s *StratifiedSampler) Len() int {
	return len(s.media) + len(s.text)
}

// MediaLen returns the size of the media-bearing pool.
func (s *StratifiedSampler) MediaLen() int { return len(s.media) }

// TextLen returns the size of the text-only pool.
func (s *StratifiedSampler) TextLen() int { return len(s.text) }

// NextBatch returns exactly batchSize samples: ceil(batchSize*mediaRatio)
// from the media pool and the remainder from the text pool. If one pool
// runs out mid-draw the other backfills; if both run out, both pools are
// reshuffled (a fresh epoch) and the draw resumes. Only a dataset of size
// zero produces a short batch.
func (s *StratifiedSampler) NextBatch(batchSize int, mediaRatio float64) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batchSize <= 0 || s.Len() == 0 {
		return nil
	}
	if mediaRatio < 0 {
		mediaRatio = 0
	}
	if mediaRatio > 1 {
		mediaRatio = 1
	}

	wantMedia := int(math.Ceil(float64(batchSize) * mediaRatio))
	if wantMedia > batchSize {
		wantMedia = batchSize
	}

	batch := make([]Sample, 0, batchSize)
	for i := 0; i < wantMedia; i++ {
		sample, ok := s.drawLocked(true)
		if !ok {
			break
		}
		batch = append(batch, sample)
	}
	for len(batch) < batchSize {
		sample, ok := s.drawLocked(false)
		if !ok {
			break
		}
		batch = append(batch, sample)
	}

	return batch
}

// drawLocked draws one sample, preferring the media pool when
// preferMedia is set and backfilling from the other pool otherwise. When
// both pools are exhausted it resets them and tries once more.
func (s *StratifiedSampler) drawLocked(preferMedia bool) (Sample, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		if preferMedia {
			if s.mediaPos < len(s.mediaIdx) {
				sample := s.media[s.mediaIdx[s.mediaPos]]
				s.mediaPos++
				return sample, true
			}
			if s.textPos < len(s.textIdx) {
				sample := s.text[s.textIdx[s.textPos]]
				s.textPos++
				return sample, true
			}
		} else {
			if s.textPos < len(s.textIdx) {
				sample := s.text[s.textIdx[s.textPos]]
				s.textPos++
				return sample, true
			}
			if s.mediaPos < len(s.mediaIdx) {
				sample := s.media[s.mediaIdx[s.mediaPos]]
				s.mediaPos++
				return sample, true
			}
		}

		// Both pools exhausted: start a fresh epoch and resume the draw.
		if s.Len() == 0 {
			return Sample{}, false
		}
		s.reshuffle()
	}
	return Sample{}, false
}

// Reset reshuffles both pools' index orderings and rewinds the cursors.
func (s *StratifiedSampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reshuffle()
}

func (s *StratifiedSampler) reshuffle() {
	s.mediaIdx = sequence(len(s.media))
	s.textIdx = sequence(len(s.text))
	s.mediaPos = 0
	s.textPos = 0

	if s.shuffle {
		s.rng.Shuffle(len(s.mediaIdx), func(i, j int) {
			s.mediaIdx[i], s.mediaIdx[j] = s.mediaIdx[j], s.mediaIdx[i]
		})
		s.rng.Shuffle(len(s.textIdx), func(i, j int) {
			s.textIdx[i], s.textIdx[j] = s.textIdx[j], s.textIdx[i]
		})
	}
}

func sequence(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
