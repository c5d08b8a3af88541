package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// UpsertReport stores r as the draft report of its assessment. A final
// report is left untouched and ErrReportFinal is returned.
func (s *SQLiteStore) UpsertReport(ctx context.Context, r *model.Report) error {
	cats, err := marshalList(r.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal categories")
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = nowUTC()
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO reports (id, assessment_id, building_id, organization_id, title, status,
			replacement_value, total_repair_cost, immediate_repair_cost, short_term_repair_cost,
			long_term_repair_cost, unallocated_repair_cost, fci_score, band, element_count,
			categories, notes, generated_at, finalized_at)
		 VALUES (?, ?, ?, ?, ?, 'draft', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (assessment_id) DO UPDATE SET
			title = excluded.title,
			replacement_value = excluded.replacement_value,
			total_repair_cost = excluded.total_repair_cost,
			immediate_repair_cost = excluded.immediate_repair_cost,
			short_term_repair_cost = excluded.short_term_repair_cost,
			long_term_repair_cost = excluded.long_term_repair_cost,
			unallocated_repair_cost = excluded.unallocated_repair_cost,
			fci_score = excluded.fci_score,
			band = excluded.band,
			element_count = excluded.element_count,
			categories = excluded.categories,
			notes = excluded.notes,
			generated_at = excluded.generated_at
		 WHERE reports.status = 'draft'
		 RETURNING id`,
		uuid.New().String(), r.AssessmentID, r.BuildingID, r.OrganizationID, r.Title,
		r.ReplacementValue, r.TotalRepairCost, r.ImmediateRepairCost, r.ShortTermRepairCost,
		r.LongTermRepairCost, r.UnallocatedRepairCost, r.FCIScore, string(r.Band), r.ElementCount,
		string(cats), r.Notes, fmtTime(r.GeneratedAt),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrReportFinal, "sqlite: report for assessment %s", r.AssessmentID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert report for assessment %s", r.AssessmentID)
	}
	r.ID = id
	r.Status = model.ReportStatusDraft
	r.FinalizedAt = nil
	return nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, orgID, id string) (*model.Report, error) {
	query, args := sqliteScoped(`SELECT `+reportColumns+` FROM reports WHERE id = ?`, []any{id}, orgID)
	r, err := scanSQLiteReport(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, sqliteNotFound(err, "report", id)
	}
	return r, nil
}

func (s *SQLiteStore) GetReportByAssessment(ctx context.Context, orgID, assessmentID string) (*model.Report, error) {
	query, args := sqliteScoped(`SELECT `+reportColumns+` FROM reports WHERE assessment_id = ?`, []any{assessmentID}, orgID)
	r, err := scanSQLiteReport(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, sqliteNotFound(err, "report for assessment", assessmentID)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := newSQLiteQuery(`SELECT ` + reportColumns + ` FROM reports WHERE 1=1`)
	q.eq("organization_id", filter.OrganizationID)
	q.eq("building_id", filter.BuildingID)
	q.eq("status", string(filter.Status))
	q.sql += ` ORDER BY generated_at DESC, id`
	q.page(filter.Limit, filter.Offset)

	return s.queryReports(ctx, "list reports", q.sql, q.args...)
}

func (s *SQLiteStore) FinalizeReport(ctx context.Context, orgID, id string) (*model.Report, error) {
	query, args := sqliteScoped(`UPDATE reports SET status = 'final', finalized_at = ?
		WHERE id = ? AND status = 'draft'`, []any{fmtTime(nowUTC()), id}, orgID)
	query += ` RETURNING ` + reportColumns

	r, err := scanSQLiteReport(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: finalize report %s", id)
	}
	if _, gerr := s.GetReport(ctx, orgID, id); gerr != nil {
		return nil, gerr
	}
	return nil, eris.Wrapf(ErrReportFinal, "sqlite: report %s", id)
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, orgID, id string) error {
	query, args := sqliteScoped(`DELETE FROM reports WHERE id = ?`, []any{id}, orgID)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete report %s", id)
	}
	return checkRowsAffected(res, "report", id)
}

func (s *SQLiteStore) LatestReports(ctx context.Context, orgID string, perBuilding int) ([]model.Report, error) {
	if perBuilding <= 0 {
		perBuilding = 1
	}
	var args []any
	where := ""
	if orgID != "" {
		args = append(args, orgID)
		where = "WHERE r.organization_id = ?"
	}
	args = append(args, perBuilding)
	query := fmt.Sprintf(latestReportsQuery, where, "?")

	return s.queryReports(ctx, "latest reports", query, args...)
}

func (s *SQLiteStore) queryReports(ctx context.Context, op, query string, args ...any) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: "+op)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: "+op+" iterate")
}

func scanSQLiteReport(row scannable) (*model.Report, error) {
	var r model.Report
	var status, band, cats, generated string
	var finalized sql.NullString
	err := row.Scan(&r.ID, &r.AssessmentID, &r.BuildingID, &r.OrganizationID, &r.Title, &status,
		&r.ReplacementValue, &r.TotalRepairCost, &r.ImmediateRepairCost, &r.ShortTermRepairCost,
		&r.LongTermRepairCost, &r.UnallocatedRepairCost, &r.FCIScore, &band, &r.ElementCount,
		&cats, &r.Notes, &generated, &finalized)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)
	r.Band = model.Band(band)
	if err := unmarshalList([]byte(cats), &r.Categories); err != nil {
		return nil, eris.Wrap(err, "unmarshal categories")
	}
	if r.GeneratedAt, err = parseTime(generated); err != nil {
		return nil, err
	}
	if r.FinalizedAt, err = parseNullTime(finalized); err != nil {
		return nil, err
	}
	return &r, nil
}
