package scoring

// Objective dimension names. Phase multipliers and coefficient maps are
// keyed by these.
const (
	DimPrecision = "precision"
	DimEmpathy   = "empathy"
	DimGrounding = "grounding"
)

// Dimensions lists the default objective dimensions in priority order.
func Dimensions() []string {
	return []string{DimPrecision, DimEmpathy, DimGrounding}
}

// ScoreVector is the structured result of scoring one response: one
// non-negative reward per dimension, a single penalty scalar, and the
// loss modifier derived from both.
type ScoreVector struct {
	Rewards  map[string]float64
	Penalty  float64
	Modifier float64
}

// TotalReward sums the per-dimension rewards.
func (sv ScoreVector) TotalReward() float64 {
	total := 0.0
	for _, r := range sv.Rewards {
		total += r
	}
	return total
}

// Scorer maps one response and a media-presence flag to a ScoreVector.
// Implementations must be pure functions of their inputs and safe for
// concurrent use; a keyword-counting scorer and a model-backed scorer are
// both valid behind this contract.
type Scorer interface {
	// Score evaluates a single response. multipliers weights each
	// dimension's reward and penalty contribution (a nil map means 1.0
	// everywhere). Score never fails: malformed input is scored as the
	// empty string.
	Score(text string, mediaPresent bool, multipliers map[string]float64) ScoreVector
}

// AverageVectors averages a set of score vectors element-wise. It is used
// to combine the per-turn scores of a multi-turn sample into a single
// contribution. An empty input yields a neutral vector (modifier 1).
func AverageVectors(vectors []ScoreVector) ScoreVector {
	if len(vectors) == 0 {
		return ScoreVector{Rewards: map[string]float64{}, Modifier: 1.0}
	}

	avg := ScoreVector{Rewards: make(map[string]float64)}
	for _, v := range vectors {
		for dim, r := range v.Rewards {
			avg.Rewards[dim] += r
		}
		avg.Penalty += v.Penalty
		avg.Modifier += v.Modifier
	}

	n := float64(len(vectors))
	for dim := range avg.Rewards {
		avg.Rewards[dim] /= n
	}
	avg.Penalty /= n
	avg.Modifier /= n

	return avg
}
