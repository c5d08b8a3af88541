package cost

import (
	"strings"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// Rates holds the repair-cost tables used when an inspector has not
// entered a cost.
type Rates struct {
	// DefaultRepair maps a condition rating (1-5) to the cost assumed for an
	// element with no recorded repair cost.
	DefaultRepair map[int]float64 `yaml:"default_repair" mapstructure:"default_repair"`
	// UnratedRepair is the assumed cost of an element with no rating.
	UnratedRepair float64 `yaml:"unrated_repair" mapstructure:"unrated_repair"`
	// CostPerSqft maps a building type to its default replacement cost per square foot.
	CostPerSqft map[string]float64 `yaml:"cost_per_sqft" mapstructure:"cost_per_sqft"`
	// FallbackCostPerSqft applies to building types missing from CostPerSqft.
	FallbackCostPerSqft float64 `yaml:"fallback_cost_per_sqft" mapstructure:"fallback_cost_per_sqft"`
}

// Split is the percentage of an element's repair cost assigned to each
// repair horizon. Percentages are integers so that bucket amounts stay
// exact for whole-dollar costs.
type Split struct {
	Immediate int
	ShortTerm int
	LongTerm  int
}

// Allocated returns the total percentage assigned to a bucket.
func (s Split) Allocated() int {
	return s.Immediate + s.ShortTerm + s.LongTerm
}

// Calculator answers repair-cost and replacement-value questions.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Missing tables
// are filled from DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	if len(rates.DefaultRepair) == 0 {
		rates.DefaultRepair = def.DefaultRepair
	}
	if rates.UnratedRepair <= 0 {
		rates.UnratedRepair = def.UnratedRepair
	}
	if len(rates.CostPerSqft) == 0 {
		rates.CostPerSqft = def.CostPerSqft
	}
	if rates.FallbackCostPerSqft <= 0 {
		rates.FallbackCostPerSqft = def.FallbackCostPerSqft
	}
	return &Calculator{rates: rates}
}

// DefaultRepairCost returns the assumed repair cost for an element with the
// given rating. A nil rating means the element was never rated.
func (c *Calculator) DefaultRepairCost(rating *int) float64 {
	if rating == nil || !model.ValidRating(*rating) {
		return c.rates.UnratedRepair
	}
	if v, ok := c.rates.DefaultRepair[*rating]; ok {
		return v
	}
	return c.rates.UnratedRepair
}

// SplitFor returns the horizon split for a rating. Unrated elements, and
// ratings off the 1-5 scale, get a zero split: their cost counts toward the
// total only.
func SplitFor(rating *int) Split {
	if rating == nil || !model.ValidRating(*rating) {
		return Split{}
	}
	switch r := *rating; {
	case r >= model.RatingPoor:
		return Split{Immediate: 70, ShortTerm: 20, LongTerm: 10}
	case r == model.RatingFair:
		return Split{ShortTerm: 60, LongTerm: 40}
	default:
		return Split{LongTerm: 80}
	}
}

// CostPerSqft returns the default replacement cost per square foot for a
// building type.
func (c *Calculator) CostPerSqft(buildingType string) float64 {
	if v, ok := c.rates.CostPerSqft[strings.ToLower(strings.TrimSpace(buildingType))]; ok && v > 0 {
		return v
	}
	return c.rates.FallbackCostPerSqft
}

// ReplacementValue resolves the FCI denominator for a building. A stored
// replacement value wins; otherwise it is derived from square footage and
// cost per square foot. Returns 0 when neither is available.
func ReplacementValue(b model.Building) float64 {
	if b.ReplacementValue > 0 {
		return b.ReplacementValue
	}
	if b.SquareFootage > 0 && b.CostPerSqft > 0 {
		return b.SquareFootage * b.CostPerSqft
	}
	return 0
}

// EstimatedReplacementValue is ReplacementValue with a per-type cost per
// square foot standing in for a missing one. Used for estimates only.
func (c *Calculator) EstimatedReplacementValue(b model.Building) float64 {
	if v := ReplacementValue(b); v > 0 {
		return v
	}
	if b.SquareFootage > 0 {
		return b.SquareFootage * c.CostPerSqft(b.Type)
	}
	return 0
}

// DefaultRates returns the default repair-cost tables.
func DefaultRates() Rates {
	return Rates{
		DefaultRepair: map[int]float64{
			model.RatingExcellent: 2000,
			model.RatingGood:      5000,
			model.RatingFair:      10000,
			model.RatingPoor:      25000,
			model.RatingCritical:  50000,
		},
		UnratedRepair: 8000,
		CostPerSqft: map[string]float64{
			"office":     300,
			"warehouse":  120,
			"retail":     180,
			"school":     250,
			"hospital":   450,
			"apartments": 220,
		},
		FallbackCostPerSqft: 200,
	}
}
