// Package fci computes repair-cost breakdowns and Facility Condition Index
// scores from assessed building elements.
package fci

import (
	"sort"

	"github.com/onyx-report/onyx-cli/internal/cost"
	"github.com/onyx-report/onyx-cli/internal/model"
)

// WarnNoReplacementValue is reported when the FCI denominator is missing
// and the score was forced to zero.
const WarnNoReplacementValue = "replacement value missing: fci forced to 0"

// DeficiencyInput is a single recorded defect feeding the aggregator.
type DeficiencyInput struct {
	Category string
	Cost     float64
}

// ElementInput is one assessed element.
type ElementInput struct {
	ElementID       string
	MajorGroup      string
	ConditionRating *int
	RepairCost      *float64
	Deficiencies    []DeficiencyInput
}

// Input is everything the aggregator needs for one assessment.
type Input struct {
	ReplacementValue float64
	Elements         []ElementInput
}

// ElementCost is the per-element share of the breakdown.
type ElementCost struct {
	ElementID       string  `json:"element_id"`
	MajorGroup      string  `json:"major_group,omitempty"`
	ConditionRating *int    `json:"condition_rating,omitempty"`
	RepairCost      float64 `json:"repair_cost"`
	Defaulted       bool    `json:"defaulted"`
	Immediate       float64 `json:"immediate"`
	ShortTerm       float64 `json:"short_term"`
	LongTerm        float64 `json:"long_term"`
}

// GroupTotal aggregates repair cost under one Uniformat major group.
type GroupTotal struct {
	MajorGroup string  `json:"major_group"`
	Elements   int     `json:"elements"`
	Total      float64 `json:"total"`
}

// Result is the output of Compute.
type Result struct {
	ReplacementValue      float64               `json:"replacement_value"`
	TotalRepairCost       float64               `json:"total_repair_cost"`
	ImmediateRepairCost   float64               `json:"immediate_repair_cost"`
	ShortTermRepairCost   float64               `json:"short_term_repair_cost"`
	LongTermRepairCost    float64               `json:"long_term_repair_cost"`
	UnallocatedRepairCost float64               `json:"unallocated_repair_cost"`
	FCIScore              float64               `json:"fci_score"`
	Band                  model.Band            `json:"band"`
	Elements              []ElementCost         `json:"elements"`
	Categories            []model.CategoryTotal `json:"categories,omitempty"`
	Groups                []GroupTotal          `json:"groups,omitempty"`
	Warnings              []string              `json:"warnings,omitempty"`
	Estimated             bool                  `json:"estimated,omitempty"`
}

// Aggregator turns assessed elements into an FCI result.
type Aggregator struct {
	calc  *cost.Calculator
	bands Bands
}

// NewAggregator creates an Aggregator. A nil calculator uses the default
// rate tables.
func NewAggregator(calc *cost.Calculator, bands Bands) *Aggregator {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Aggregator{calc: calc, bands: bands.withDefaults()}
}

// Bands returns the thresholds in use.
func (a *Aggregator) Bands() Bands {
	return a.bands
}

// Compute aggregates the elements of one assessment. It never fails: a
// missing replacement value yields a zero score plus a warning, and
// unrated elements count toward the total but not toward any horizon.
func (a *Aggregator) Compute(in Input) Result {
	elems := make([]ElementInput, len(in.Elements))
	copy(elems, in.Elements)
	// Fixed summation order keeps regenerated reports bit-identical.
	sort.SliceStable(elems, func(i, j int) bool { return elems[i].ElementID < elems[j].ElementID })

	res := Result{
		ReplacementValue: in.ReplacementValue,
		Elements:         make([]ElementCost, 0, len(elems)),
	}
	groups := make(map[string]*GroupTotal)
	categories := make(map[string]*model.CategoryTotal)

	for _, e := range elems {
		ec := a.elementCost(e)
		res.Elements = append(res.Elements, ec)

		res.TotalRepairCost += ec.RepairCost
		res.ImmediateRepairCost += ec.Immediate
		res.ShortTermRepairCost += ec.ShortTerm
		res.LongTermRepairCost += ec.LongTerm

		group := e.MajorGroup
		if group == "" {
			group = "Other"
		}
		g, ok := groups[group]
		if !ok {
			g = &GroupTotal{MajorGroup: group}
			groups[group] = g
		}
		g.Elements++
		g.Total += ec.RepairCost

		for _, d := range e.Deficiencies {
			cat := NormalizeCategory(d.Category)
			c, ok := categories[cat]
			if !ok {
				c = &model.CategoryTotal{Category: cat}
				categories[cat] = c
			}
			c.Count++
			if d.Cost > 0 {
				c.Total += d.Cost
			}
		}
	}

	res.UnallocatedRepairCost = res.TotalRepairCost -
		(res.ImmediateRepairCost + res.ShortTermRepairCost + res.LongTermRepairCost)
	if res.UnallocatedRepairCost < 0 {
		res.UnallocatedRepairCost = 0
	}

	res.FCIScore = Score(res.TotalRepairCost, in.ReplacementValue)
	if in.ReplacementValue <= 0 {
		res.Warnings = append(res.Warnings, WarnNoReplacementValue)
	}
	res.Band = a.bands.Classify(res.FCIScore)
	res.Groups = sortGroups(groups)
	res.Categories = SortCategories(categories)
	return res
}

// Score returns repairCost / replacementValue, or 0 when the replacement
// value is not positive.
func Score(repairCost, replacementValue float64) float64 {
	if replacementValue <= 0 {
		return 0
	}
	return repairCost / replacementValue
}

func (a *Aggregator) elementCost(e ElementInput) ElementCost {
	ec := ElementCost{
		ElementID:       e.ElementID,
		MajorGroup:      e.MajorGroup,
		ConditionRating: e.ConditionRating,
	}

	switch {
	case e.RepairCost != nil && *e.RepairCost >= 0:
		ec.RepairCost = *e.RepairCost
	case deficiencyTotal(e.Deficiencies) > 0:
		ec.RepairCost = deficiencyTotal(e.Deficiencies)
	default:
		ec.RepairCost = a.calc.DefaultRepairCost(e.ConditionRating)
		ec.Defaulted = true
	}

	split := cost.SplitFor(e.ConditionRating)
	ec.Immediate = share(ec.RepairCost, split.Immediate)
	ec.ShortTerm = share(ec.RepairCost, split.ShortTerm)
	ec.LongTerm = share(ec.RepairCost, split.LongTerm)
	return ec
}

func share(amount float64, pct int) float64 {
	if pct == 0 {
		return 0
	}
	return amount * float64(pct) / 100
}

func deficiencyTotal(defs []DeficiencyInput) float64 {
	var total float64
	for _, d := range defs {
		if d.Cost > 0 {
			total += d.Cost
		}
	}
	return total
}

func sortGroups(m map[string]*GroupTotal) []GroupTotal {
	if len(m) == 0 {
		return nil
	}
	out := make([]GroupTotal, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MajorGroup < out[j].MajorGroup })
	return out
}
