package fci

import (
	"sort"
	"strings"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// Canonical deficiency categories, highest priority first.
const (
	CategoryLifeSafety     = "Life Safety & Code Compliance"
	CategoryCritical       = "Critical Systems"
	CategoryEnergy         = "Energy Efficiency"
	CategoryAssetLifeCycle = "Asset Life Cycle"
	CategoryUserExperience = "User Experience"
	CategoryEquity         = "Equity & Accessibility"
	CategoryUncategorized  = "Uncategorized"
)

// Categories lists the canonical categories in priority order.
var Categories = []string{
	CategoryLifeSafety,
	CategoryCritical,
	CategoryEnergy,
	CategoryAssetLifeCycle,
	CategoryUserExperience,
	CategoryEquity,
}

var categoryAliases = map[string]string{
	"life-safety":          CategoryLifeSafety,
	"critical-systems":     CategoryCritical,
	"energy-efficiency":    CategoryEnergy,
	"asset-lifecycle":      CategoryAssetLifeCycle,
	"user-experience":      CategoryUserExperience,
	"equity-accessibility": CategoryEquity,

	"critical systems & operational continuity": CategoryCritical,
	"energy efficiency & sustainability":        CategoryEnergy,
	"asset life cycle & deferred maintenance":   CategoryAssetLifeCycle,
	"user experience & aesthetic enhancement":   CategoryUserExperience,
}

// keyword fallbacks, checked in order. Life cycle precedes life safety.
var categoryKeywords = []struct {
	words    []string
	category string
}{
	{[]string{"lifecycle", "life cycle", "asset", "deferred"}, CategoryAssetLifeCycle},
	{[]string{"life", "safety", "code"}, CategoryLifeSafety},
	{[]string{"critical", "systems"}, CategoryCritical},
	{[]string{"energy", "efficiency"}, CategoryEnergy},
	{[]string{"user", "experience", "aesthetic"}, CategoryUserExperience},
	{[]string{"equity", "accessibility"}, CategoryEquity},
}

// NormalizeCategory maps free-form category input to a canonical category.
// Unknown or empty input returns CategoryUncategorized.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryUncategorized
	}
	for _, c := range Categories {
		if strings.EqualFold(s, c) {
			return c
		}
	}
	lower := strings.ToLower(s)
	if c, ok := categoryAliases[lower]; ok {
		return c
	}
	for _, kw := range categoryKeywords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return kw.category
			}
		}
	}
	return CategoryUncategorized
}

func categoryPriority(c string) int {
	for i, name := range Categories {
		if name == c {
			return i
		}
	}
	return len(Categories)
}

// SortCategories flattens category totals, largest total first. Ties keep
// priority order.
func SortCategories(m map[string]*model.CategoryTotal) []model.CategoryTotal {
	if len(m) == 0 {
		return nil
	}
	out := make([]model.CategoryTotal, 0, len(m))
	for _, c := range m {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return categoryPriority(out[i].Category) < categoryPriority(out[j].Category)
	})
	return out
}
