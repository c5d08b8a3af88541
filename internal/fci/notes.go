package fci

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Notes renders a plain-text summary of a result, suitable for storing on
// a completed assessment.
func (a *Aggregator) Notes(r Result, generatedAt time.Time) string {
	p := message.NewPrinter(language.English)
	b := a.bands

	var sb strings.Builder
	sb.WriteString("FACILITY CONDITION INDEX (FCI) ASSESSMENT RESULTS\n\n")
	sb.WriteString(p.Sprintf("FCI Score: %.4f\n", r.FCIScore))
	sb.WriteString(p.Sprintf("Condition Rating: %s\n\n", r.Band))

	sb.WriteString("COST BREAKDOWN:\n")
	sb.WriteString(p.Sprintf("- Total Repair Cost: $%.2f\n", r.TotalRepairCost))
	sb.WriteString(p.Sprintf("- Replacement Value: $%.2f\n\n", r.ReplacementValue))

	sb.WriteString("REPAIR TIMELINE:\n")
	sb.WriteString(p.Sprintf("- Immediate Repairs: $%.2f\n", r.ImmediateRepairCost))
	sb.WriteString(p.Sprintf("- Short-term (1-3 years): $%.2f\n", r.ShortTermRepairCost))
	sb.WriteString(p.Sprintf("- Long-term (3-5 years): $%.2f\n", r.LongTermRepairCost))
	if r.UnallocatedRepairCost > 0 {
		sb.WriteString(p.Sprintf("- Not scheduled: $%.2f\n", r.UnallocatedRepairCost))
	}

	if len(r.Categories) > 0 {
		sb.WriteString("\nDEFICIENCIES BY CATEGORY:\n")
		for _, c := range r.Categories {
			sb.WriteString(p.Sprintf("- %s (%d): $%.2f\n", c.Category, c.Count, c.Total))
		}
	}

	sb.WriteString("\nCONDITION RATING SCALE:\n")
	sb.WriteString(p.Sprintf("- Good (<= %.2f)\n", b.Good))
	sb.WriteString(p.Sprintf("- Fair (<= %.2f)\n", b.Fair))
	sb.WriteString(p.Sprintf("- Poor (<= %.2f)\n", b.Poor))
	sb.WriteString(p.Sprintf("- Critical (> %.2f)\n", b.Poor))

	for _, w := range r.Warnings {
		sb.WriteString("\nWARNING: " + w + "\n")
	}

	sb.WriteString("\nGenerated on: " + generatedAt.UTC().Format(time.RFC3339))
	return sb.String()
}
