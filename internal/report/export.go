package report

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/store"
)

// LoadExport gathers the reports matching f and the buildings they refer
// to. A filter without a limit pages through every matching report.
func LoadExport(ctx context.Context, st store.Store, f store.ReportFilter) ([]model.Report, map[string]model.Building, error) {
	reports, err := collectReports(ctx, st, f)
	if err != nil {
		return nil, nil, eris.Wrap(err, "report: export reports")
	}

	buildings := make(map[string]model.Building)
	bf := store.BuildingFilter{OrganizationID: f.OrganizationID, Limit: store.MaxListLimit}
	for {
		page, err := st.ListBuildings(ctx, bf)
		if err != nil {
			return nil, nil, eris.Wrap(err, "report: export buildings")
		}
		for _, b := range page {
			buildings[b.ID] = b
		}
		if len(page) < bf.Limit {
			return reports, buildings, nil
		}
		bf.Offset += bf.Limit
	}
}

func collectReports(ctx context.Context, st store.Store, f store.ReportFilter) ([]model.Report, error) {
	if f.Limit > 0 {
		return st.ListReports(ctx, f)
	}
	var out []model.Report
	f.Limit = store.MaxListLimit
	for {
		page, err := st.ListReports(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < f.Limit {
			return out, nil
		}
		f.Offset += f.Limit
	}
}
