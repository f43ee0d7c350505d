package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MarkerSet holds the lexical marker tables the keyword scorer counts.
// The tables are plain data so a run can swap in a customized set from a
// YAML file without touching the scorer.
type MarkerSet struct {
	// Precision dimension: cautious diagnostic phrasing and clinical
	// vocabulary.
	PrecisionPhrases []string `yaml:"precision_phrases"`
	ClinicalTerms    []string `yaml:"clinical_terms"`
	StructureMarkers []string `yaml:"structure_markers"`

	// Empathy dimension: warm, supportive phrasing.
	EmpathyHigh    []string `yaml:"empathy_high"`
	EmpathySoft    []string `yaml:"empathy_soft"`
	OpeningPhrases []string `yaml:"opening_phrases"`
	ClosingPhrases []string `yaml:"closing_phrases"`

	// Grounding dimension: references to the auxiliary media.
	MediaTerms []string `yaml:"media_terms"`

	// Penalty tables.
	Overconfident []string `yaml:"overconfident"`
	Dismissive    []string `yaml:"dismissive"`
	Vague         []string `yaml:"vague"`
}

// LoadMarkers reads marker tables from a YAML file, overlaid on the
// defaults: a file only needs to state the tables it replaces.
func LoadMarkers(path string) (MarkerSet, error) {
	markers := DefaultMarkers()

	data, err := os.ReadFile(path)
	if err != nil {
		return markers, fmt.Errorf("failed to read markers: %v", err)
	}
	if err := yaml.Unmarshal(data, &markers); err != nil {
		return markers, fmt.Errorf("failed to parse markers %s: %v", path, err)
	}
	return markers, nil
}

// DefaultMarkers returns the built-in marker tables for a medical
// conversational assistant.
func DefaultMarkers() MarkerSet {
	return MarkerSet{
		PrecisionPhrases: []string{
			"may indicate", "consistent with", "typically", "in general",
			"reference range", "normal range", "recommend", "suggests",
			"commonly", "should be evaluated", "based on", "findings",
			"assessment", "differential", "follow up", "monitor",
		},
		ClinicalTerms: []string{
			"blood pressure", "blood glucose", "heart rate", "temperature",
			"cholesterol", "triglyceride", "white blood cell", "red blood cell",
			"platelet", "hemoglobin", "uric acid", "creatinine",
			"liver function", "kidney function", "inflammation", "infection",
			"lesion", "edema", "symptom", "diagnosis", "hypertension",
			"diabetes", "anemia", "dosage",
		},
		StructureMarkers: []string{
			"first", "second", "finally", "in summary", "1.", "2.", "3.",
		},
		EmpathyHigh: []string{
			"i understand", "i can see why", "thank you for sharing",
			"let me help", "i'm here to help", "that must be",
			"it's understandable", "please don't worry", "i appreciate",
		},
		EmpathySoft: []string{
			"please", "you may want", "consider", "feel free",
			"take care", "gently", "when you're ready", "at your own pace",
		},
		OpeningPhrases: []string{
			"i understand", "thank you", "i can see", "let me",
			"i appreciate",
		},
		ClosingPhrases: []string{
			"wishing you", "take care", "feel better", "speedy recovery",
			"all the best", "stay healthy",
		},
		MediaTerms: []string{
			"the image", "the scan", "x-ray", "ct", "mri", "ultrasound",
			"visible", "shows", "region", "opacity", "shadow", "nodule",
			"density", "margin", "upper lobe", "lower lobe", "in the film",
		},
		Overconfident: []string{
			"definitely", "certainly", "absolutely", "without a doubt",
			"100%", "must be", "guaranteed", "there is no way",
			"it is impossible",
		},
		Dismissive: []string{
			"figure it out yourself", "ask someone else", "not my problem",
			"i can't help you", "just google it", "stop worrying",
		},
		Vague: []string{
			"not sure", "hard to say", "can't tell", "no idea",
			"maybe, maybe not", "who knows",
		},
	}
}
