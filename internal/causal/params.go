package causal

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Params holds every tunable constant of a run. The zero value is invalid;
// start from DefaultParams or a tuning profile. Serialized field order is
// the declaration order below and feeds the provenance hash, so renaming or
// reordering fields is a kernel-version bump.
type Params struct {
	// Level-1 pairing window and decay.
	KLocal    int     `json:"k_local" yaml:"k_local"`     // max forward line distance cause→effect
	Tau       float64 `json:"tau" yaml:"tau"`             // distance at which decay reaches 0.5
	Steepness float64 `json:"steepness" yaml:"steepness"` // Hill exponent shaping the decay
	BetaLex   float64 `json:"beta_lex" yaml:"beta_lex"`   // lexical amplification factor
	UseIDF    bool    `json:"use_idf" yaml:"use_idf"`     // weight lexical overlap by per-transcript IDF

	// Acceptance thresholds by externally classified cause strength.
	// Strong causes clear the lower bar.
	ThresholdStrong float64 `json:"threshold_strong" yaml:"threshold_strong"`
	ThresholdWeak   float64 `json:"threshold_weak" yaml:"threshold_weak"`

	// Absorption: radius and capacity grow with link mass.
	RadiusBase       float64 `json:"radius_base" yaml:"radius_base"`
	RadiusPerMass    float64 `json:"radius_per_mass" yaml:"radius_per_mass"`
	CapBase          float64 `json:"cap_base" yaml:"cap_base"`
	CapPerMass       float64 `json:"cap_per_mass" yaml:"cap_per_mass"`
	AbsorbBase       float64 `json:"absorb_base" yaml:"absorb_base"`
	AbsorbPerLogMass float64 `json:"absorb_per_log_mass" yaml:"absorb_per_log_mass"`

	// Level-N merging.
	KLocalLinks     int     `json:"k_local_links" yaml:"k_local_links"`         // candidate partners per node
	MaxForwardLines int     `json:"max_forward_lines" yaml:"max_forward_lines"` // center-distance cap
	TauLinks        float64 `json:"tau_links" yaml:"tau_links"`
	MergeBase       float64 `json:"merge_base" yaml:"merge_base"`
	MergeLogK       float64 `json:"merge_log_k" yaml:"merge_log_k"` // mass-aware threshold growth

	// Orchestration.
	MaxLevel  int  `json:"max_level" yaml:"max_level"`
	MaxRounds int  `json:"max_rounds" yaml:"max_rounds"`
	EarlyStop bool `json:"early_stop" yaml:"early_stop"`
}

// DefaultParams returns the baseline tuning. The mass-aware constants are
// empirical, calibrated per corpus through profiles rather than fixed law.
func DefaultParams() Params {
	return Params{
		KLocal:    8,
		Tau:       4,
		Steepness: 2,
		BetaLex:   0.6,
		UseIDF:    false,

		ThresholdStrong: 0.25,
		ThresholdWeak:   0.40,

		RadiusBase:       3,
		RadiusPerMass:    0.5,
		CapBase:          2,
		CapPerMass:       0.25,
		AbsorbBase:       0.30,
		AbsorbPerLogMass: 0.05,

		KLocalLinks:     4,
		MaxForwardLines: 60,
		TauLinks:        12,
		MergeBase:       0.35,
		MergeLogK:       0.08,

		MaxLevel:  3,
		MaxRounds: 4,
		EarlyStop: true,
	}
}

// Validate rejects parameters that would make a run meaningless instead of
// silently defaulting them: windows and radii must be positive, thresholds
// ordered, growth factors non-negative.
func (p Params) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.KLocal, validation.Required, validation.Min(1)),
		validation.Field(&p.Tau, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.Steepness, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.BetaLex, validation.Min(0.0)),
		validation.Field(&p.ThresholdStrong, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.ThresholdWeak, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.RadiusBase, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.RadiusPerMass, validation.Min(0.0)),
		validation.Field(&p.CapBase, validation.Min(0.0)),
		validation.Field(&p.CapPerMass, validation.Min(0.0)),
		validation.Field(&p.AbsorbBase, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.AbsorbPerLogMass, validation.Min(0.0)),
		validation.Field(&p.KLocalLinks, validation.Required, validation.Min(1)),
		validation.Field(&p.MaxForwardLines, validation.Required, validation.Min(1)),
		validation.Field(&p.TauLinks, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.MergeBase, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.MergeLogK, validation.Min(0.0)),
		validation.Field(&p.MaxLevel, validation.Required, validation.Min(1), validation.Max(3)),
		validation.Field(&p.MaxRounds, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.ThresholdStrong > p.ThresholdWeak {
		return fmt.Errorf("%w: threshold_strong %.3f must not exceed threshold_weak %.3f",
			ErrInvalidParams, p.ThresholdStrong, p.ThresholdWeak)
	}
	return nil
}
