package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/model"
)

const (
	sheetReports = "Reports"
	sheetSummary = "Summary"

	moneyFormat = "#,##0.00"
	fciFormat   = "0.0000"
)

var reportHeaders = []string{
	"Building", "City", "Report", "Status", "Replacement Value", "Total Repair Cost",
	"Immediate", "Short-term", "Long-term", "Unallocated", "FCI", "Band", "Generated",
}

// Summary is the portfolio rollup written to the Summary sheet.
type Summary struct {
	Reports          int
	ReplacementValue float64
	TotalRepairCost  float64
	ImmediateRepair  float64
	AverageFCI       float64
	PortfolioFCI     float64
	Bands            map[model.Band]int
}

// Summarize rolls up a set of reports. PortfolioFCI weights each building by
// its replacement value; AverageFCI does not.
func Summarize(reports []model.Report) Summary {
	s := Summary{Reports: len(reports), Bands: make(map[model.Band]int)}
	var fciSum float64
	for _, r := range reports {
		s.ReplacementValue += r.ReplacementValue
		s.TotalRepairCost += r.TotalRepairCost
		s.ImmediateRepair += r.ImmediateRepairCost
		fciSum += r.FCIScore
		s.Bands[r.Band]++
	}
	if len(reports) > 0 {
		s.AverageFCI = fciSum / float64(len(reports))
	}
	s.PortfolioFCI = fci.Score(s.TotalRepairCost, s.ReplacementValue)
	return s
}

// ExportXLSX writes reports as a workbook with a Reports sheet and a
// Summary sheet. buildings is keyed by building ID and may be incomplete.
func ExportXLSX(w io.Writer, reports []model.Report, buildings map[string]model.Building) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(sheetReports)
	if err != nil {
		return eris.Wrap(err, "xlsx: add reports sheet")
	}
	addStringRow(sheet, reportHeaders...)
	for _, r := range reports {
		b := buildings[r.BuildingID]
		name := b.Name
		if name == "" {
			name = r.BuildingID
		}

		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetString(b.City)
		row.AddCell().SetString(r.Title)
		row.AddCell().SetString(string(r.Status))
		for _, v := range []float64{
			r.ReplacementValue, r.TotalRepairCost, r.ImmediateRepairCost,
			r.ShortTermRepairCost, r.LongTermRepairCost, r.UnallocatedRepairCost,
		} {
			row.AddCell().SetFloatWithFormat(v, moneyFormat)
		}
		row.AddCell().SetFloatWithFormat(r.FCIScore, fciFormat)
		row.AddCell().SetString(string(r.Band))
		row.AddCell().SetString(r.GeneratedAt.UTC().Format(time.RFC3339))
	}

	summary, err := f.AddSheet(sheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	s := Summarize(reports)
	addStringRow(summary, "Metric", "Value")
	addNumberRow(summary, "Reports", float64(s.Reports), "0")
	addNumberRow(summary, "Total Replacement Value", s.ReplacementValue, moneyFormat)
	addNumberRow(summary, "Total Repair Cost", s.TotalRepairCost, moneyFormat)
	addNumberRow(summary, "Immediate Repair Cost", s.ImmediateRepair, moneyFormat)
	addNumberRow(summary, "Average FCI", s.AverageFCI, fciFormat)
	addNumberRow(summary, "Portfolio FCI", s.PortfolioFCI, fciFormat)
	for _, band := range []model.Band{model.BandGood, model.BandFair, model.BandPoor, model.BandCritical} {
		addNumberRow(summary, string(band)+" Buildings", float64(s.Bands[band]), "0")
	}

	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

func addStringRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addNumberRow(sheet *xlsx.Sheet, label string, v float64, format string) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloatWithFormat(v, format)
}
