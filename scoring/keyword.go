package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Config holds the tunable scoring constants. The default magnitudes were
// tuned by hand; treat them as starting points to re-validate against a
// held-out set, not as fixed truths.
type Config struct {
	// RewardScale (alpha) and PenaltyScale (beta) convert summed rewards
	// and penalties into the loss modifier.
	RewardScale  float64 `yaml:"reward_scale" json:"reward_scale"`
	PenaltyScale float64 `yaml:"penalty_scale" json:"penalty_scale"`

	// MinModifier and MaxModifier clamp the modifier. MinModifier < 1 <
	// MaxModifier must hold.
	MinModifier float64 `yaml:"min_modifier" json:"min_modifier"`
	MaxModifier float64 `yaml:"max_modifier" json:"max_modifier"`

	// Per-dimension coefficients, reflecting objective priority.
	RewardCoef  map[string]float64 `yaml:"reward_coef" json:"reward_coef"`
	PenaltyCoef map[string]float64 `yaml:"penalty_coef" json:"penalty_coef"`

	// RewardCap bounds each dimension's raw sub-score so repeated marker
	// stuffing cannot inflate the reward.
	RewardCap map[string]float64 `yaml:"reward_cap" json:"reward_cap"`

	// ShortResponseLen is the rune count under which a response is
	// penalized as too short. VocabCheckLen is the rune count above which
	// a response with no clinical vocabulary at all is penalized.
	ShortResponseLen int `yaml:"short_response_len" json:"short_response_len"`
	VocabCheckLen    int `yaml:"vocab_check_len" json:"vocab_check_len"`
}

// DefaultConfig returns the default scoring constants: precision weighted
// heaviest, empathy second, media grounding third.
func DefaultConfig() Config {
	return Config{
		RewardScale:  0.1,
		PenaltyScale: 0.15,
		MinModifier:  0.3,
		MaxModifier:  2.5,
		RewardCoef: map[string]float64{
			DimPrecision: 2.0,
			DimEmpathy:   1.0,
			DimGrounding: 0.6,
		},
		PenaltyCoef: map[string]float64{
			DimPrecision: 3.0,
			DimEmpathy:   1.5,
			DimGrounding: 1.0,
		},
		RewardCap: map[string]float64{
			DimPrecision: 5.0,
			DimEmpathy:   3.0,
			DimGrounding: 2.0,
		},
		ShortResponseLen: 50,
		VocabCheckLen:    120,
	}
}

// Fixed per-marker weights for the raw sub-scores.
const (
	precisionPhraseReward = 0.5
	clinicalTermReward    = 0.4
	clinicalTermCap       = 2.0
	quantitativeReward    = 0.8
	structureReward       = 0.6
	lengthBonus           = 0.4

	empathyHighReward = 0.4
	empathySoftReward = 0.2
	openingReward     = 0.5
	closingReward     = 0.3

	mediaTermReward = 0.3
	mediaTermCap    = 1.5
	mediaDepthBonus = 0.5

	overconfidentPenalty = 2.0
	vaguePenalty         = 0.5
	shortPenalty         = 1.0
	missingVocabPenalty  = 1.0
	dismissivePenalty    = 1.0
	shortColdPenalty     = 0.8
	noWarmthPenalty      = 1.2
	mediaIgnoredPenalty  = 0.8
)

// numberPattern matches plain numeric values; rangePattern matches
// quantitative ranges like "120-140" or "3.5 to 5.0".
var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	rangePattern  = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:-|–|to)\s*\d+(?:\.\d+)?`)
)

// KeywordScorer scores responses by counting dimension-specific lexical
// markers. It is stateless after construction and safe for concurrent use.
type KeywordScorer struct {
	markers MarkerSet
	cfg     Config
}

// NewKeywordScorer creates a keyword scorer. Zero-valued config fields are
// replaced with defaults so a partially specified config stays usable.
func NewKeywordScorer(markers MarkerSet, cfg Config) *KeywordScorer {
	def := DefaultConfig()
	if cfg.RewardScale <= 0 {
		cfg.RewardScale = def.RewardScale
	}
	if cfg.PenaltyScale <= 0 {
		cfg.PenaltyScale = def.PenaltyScale
	}
	if cfg.MinModifier <= 0 || cfg.MinModifier >= 1 {
		cfg.MinModifier = def.MinModifier
	}
	if cfg.MaxModifier <= 1 {
		cfg.MaxModifier = def.MaxModifier
	}
	if len(cfg.RewardCoef) == 0 {
		cfg.RewardCoef = def.RewardCoef
	}
	if len(cfg.PenaltyCoef) == 0 {
		cfg.PenaltyCoef = def.PenaltyCoef
	}
	if len(cfg.RewardCap) == 0 {
		cfg.RewardCap = def.RewardCap
	}
	if cfg.ShortResponseLen <= 0 {
		cfg.ShortResponseLen = def.ShortResponseLen
	}
	if cfg.VocabCheckLen <= 0 {
		cfg.VocabCheckLen = def.VocabCheckLen
	}

	return &KeywordScorer{markers: markers, cfg: cfg}
}

// NewDefaultScorer creates a keyword scorer with the built-in marker
// tables and default constants.
func NewDefaultScorer() *KeywordScorer {
	return NewKeywordScorer(DefaultMarkers(), DefaultConfig())
}

// Config returns the effective scoring constants.
func (ks *KeywordScorer) Config() Config {
	return ks.cfg
}

// Score implements Scorer. The text is lowercased once; every marker table
// is matched case-insensitively against that form.
func (ks *KeywordScorer) Score(text string, mediaPresent bool, multipliers map[string]float64) ScoreVector {
	lower := strings.ToLower(text)
	runes := utf8.RuneCountInString(text)

	precReward, precPenalty := ks.precisionScore(lower, runes)
	empReward, empPenalty := ks.empathyScore(lower, runes)
	grdReward, grdPenalty := ks.groundingScore(lower, runes, mediaPresent)

	raw := map[string][2]float64{
		DimPrecision: {precReward, precPenalty},
		DimEmpathy:   {empReward, empPenalty},
		DimGrounding: {grdReward, grdPenalty},
	}

	sv := ScoreVector{Rewards: make(map[string]float64, len(raw))}
	for dim, rp := range raw {
		reward, penalty := rp[0], rp[1]
		if ceiling, ok := ks.cfg.RewardCap[dim]; ok && reward > ceiling {
			reward = ceiling
		}
		mult := multiplierFor(multipliers, dim)
		sv.Rewards[dim] = reward * ks.cfg.RewardCoef[dim] * mult
		sv.Penalty += penalty * ks.cfg.PenaltyCoef[dim] * mult
	}

	modifier := 1.0 + ks.cfg.PenaltyScale*sv.Penalty - ks.cfg.RewardScale*sv.TotalReward()
	if modifier < ks.cfg.MinModifier {
		modifier = ks.cfg.MinModifier
	}
	if modifier > ks.cfg.MaxModifier {
		modifier = ks.cfg.MaxModifier
	}
	sv.Modifier = modifier

	return sv
}

// precisionScore computes the raw precision reward and penalty. Marker
// matches are presence checks, so repeating a phrase does not compound.
func (ks *KeywordScorer) precisionScore(lower string, runes int) (reward, penalty float64) {
	for _, phrase := range ks.markers.PrecisionPhrases {
		if strings.Contains(lower, phrase) {
			reward += precisionPhraseReward
		}
	}

	termReward := float64(countPresent(lower, ks.markers.ClinicalTerms)) * clinicalTermReward
	if termReward > clinicalTermCap {
		termReward = clinicalTermCap
	}
	reward += termReward

	// Quantitative content: at least two numeric values, or an explicit
	// range, counts as concrete data.
	if len(numberPattern.FindAllString(lower, 2)) >= 2 || rangePattern.MatchString(lower) {
		reward += quantitativeReward
	}

	if anyPresent(lower, ks.markers.StructureMarkers) {
		reward += structureReward
	}

	if runes > 200 {
		reward += lengthBonus
	}
	if runes > 400 {
		reward += lengthBonus
	}

	for _, phrase := range ks.markers.Overconfident {
		if strings.Contains(lower, phrase) {
			penalty += overconfidentPenalty
		}
	}
	for _, phrase := range ks.markers.Vague {
		if strings.Contains(lower, phrase) {
			penalty += vaguePenalty
		}
	}
	if runes < ks.cfg.ShortResponseLen {
		penalty += shortPenalty
	}
	if runes >= ks.cfg.VocabCheckLen && countPresent(lower, ks.markers.ClinicalTerms) == 0 {
		penalty += missingVocabPenalty
	}

	return reward, penalty
}

// empathyScore computes the raw empathy reward and penalty.
func (ks *KeywordScorer) empathyScore(lower string, runes int) (reward, penalty float64) {
	for _, phrase := range ks.markers.EmpathyHigh {
		if strings.Contains(lower, phrase) {
			reward += empathyHighReward
		}
	}
	for _, phrase := range ks.markers.EmpathySoft {
		if strings.Contains(lower, phrase) {
			reward += empathySoftReward
		}
	}

	if anyPresent(runePrefix(lower, 60), ks.markers.OpeningPhrases) {
		reward += openingReward
	}
	if anyPresent(runeSuffix(lower, 80), ks.markers.ClosingPhrases) {
		reward += closingReward
	}

	for _, phrase := range ks.markers.Dismissive {
		if strings.Contains(lower, phrase) {
			penalty += dismissivePenalty
		}
	}
	if runes < ks.cfg.ShortResponseLen {
		penalty += shortColdPenalty
	}
	// A long, purely technical answer with no warmth at all reads cold.
	if runes >= ks.cfg.ShortResponseLen && !anyPresent(lower, ks.markers.EmpathyHigh) {
		penalty += noWarmthPenalty
	}

	return reward, penalty
}

// groundingScore computes the raw media-grounding reward and penalty. A
// text-only sample contributes nothing on this dimension.
func (ks *KeywordScorer) groundingScore(lower string, runes int, mediaPresent bool) (reward, penalty float64) {
	if !mediaPresent {
		return 0, 0
	}

	termCount := countPresent(lower, ks.markers.MediaTerms)
	reward = float64(termCount) * mediaTermReward
	if reward > mediaTermCap {
		reward = mediaTermCap
	}
	if runes > 200 && termCount >= 3 {
		reward += mediaDepthBonus
	}

	if termCount == 0 {
		penalty += mediaIgnoredPenalty
	}

	return reward, penalty
}

func multiplierFor(multipliers map[string]float64, dim string) float64 {
	if multipliers == nil {
		return 1.0
	}
	if m, ok := multipliers[dim]; ok {
		return m
	}
	return 1.0
}

func countPresent(lower string, phrases []string) int {
	count := 0
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			count++
		}
	}
	return count
}

func anyPresent(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// runePrefix returns the first n runes of s.
func runePrefix(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

// runeSuffix returns the last n runes of s.
func runeSuffix(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	skip := count - n
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return s
}
