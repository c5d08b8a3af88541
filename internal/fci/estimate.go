package fci

import (
	"math"
	"strings"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// deteriorationPerYear is the assumed FCI growth per year of building age.
const deteriorationPerYear = 0.02

// maxEstimatedFCI caps age-based estimates.
const maxEstimatedFCI = 0.8

var typeModifiers = map[string]float64{
	"office-single":        1.0,
	"office-midrise":       1.1,
	"office-highrise":      1.3,
	"warehouse-basic":      0.8,
	"warehouse-industrial": 1.0,
	"manufacturing":        1.2,
	"medical-office":       1.4,
	"hospital":             1.6,
	"school-primary":       1.1,
	"university":           1.2,
	"retail-strip":         0.9,
	"retail-mall":          1.1,
	"apartments":           1.0,
}

// TypeModifier returns the deterioration multiplier for a building type.
func TypeModifier(buildingType string) float64 {
	if m, ok := typeModifiers[strings.ToLower(strings.TrimSpace(buildingType))]; ok {
		return m
	}
	return 1.0
}

// Estimate produces an age-based FCI for a building that has no rated
// elements. The result is flagged Estimated and is never persisted as a
// report.
func (a *Aggregator) Estimate(b model.Building, year int) Result {
	rv := a.calc.EstimatedReplacementValue(b)
	score := math.Min(float64(b.Age(year))*deteriorationPerYear*TypeModifier(b.Type), maxEstimatedFCI)
	total := rv * score

	res := Result{
		ReplacementValue:    rv,
		TotalRepairCost:     total,
		ImmediateRepairCost: total * 30 / 100,
		ShortTermRepairCost: total * 40 / 100,
		LongTermRepairCost:  total * 30 / 100,
		FCIScore:            score,
		Band:                a.bands.Classify(score),
		Elements:            []ElementCost{},
		Estimated:           true,
	}
	if rv <= 0 {
		res.FCIScore = 0
		res.TotalRepairCost = 0
		res.ImmediateRepairCost, res.ShortTermRepairCost, res.LongTermRepairCost = 0, 0, 0
		res.Band = a.bands.Classify(0)
		res.Warnings = append(res.Warnings, WarnNoReplacementValue)
	}
	return res
}
