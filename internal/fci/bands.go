package fci

import "github.com/onyx-report/onyx-cli/internal/model"

// Bands holds the inclusive upper FCI bound of each condition band. Scores
// above Poor are Critical.
type Bands struct {
	Good float64 `yaml:"good" mapstructure:"good"`
	Fair float64 `yaml:"fair" mapstructure:"fair"`
	Poor float64 `yaml:"poor" mapstructure:"poor"`
}

// DefaultBands returns the standard thresholds: 5%, 10% and 30%.
func DefaultBands() Bands {
	return Bands{Good: 0.05, Fair: 0.10, Poor: 0.30}
}

func (b Bands) withDefaults() Bands {
	if b.Good <= 0 || b.Fair < b.Good || b.Poor < b.Fair {
		return DefaultBands()
	}
	return b
}

// Classify maps a score to its band.
func (b Bands) Classify(score float64) model.Band {
	b = b.withDefaults()
	switch {
	case score <= b.Good:
		return model.BandGood
	case score <= b.Fair:
		return model.BandFair
	case score <= b.Poor:
		return model.BandPoor
	default:
		return model.BandCritical
	}
}
