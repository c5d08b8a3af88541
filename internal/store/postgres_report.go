package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// UpsertReport stores r as the draft report of its assessment. A draft is
// overwritten in place; a final report is left untouched and ErrReportFinal
// is returned. On success r.ID and r.Status reflect the stored row.
func (s *PostgresStore) UpsertReport(ctx context.Context, r *model.Report) error {
	cats, err := marshalList(r.Categories)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal categories")
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	var id string
	err = s.pool.QueryRow(ctx, sqlUpsertReport,
		uuid.New().String(), r.AssessmentID, r.BuildingID, r.OrganizationID, r.Title,
		r.ReplacementValue, r.TotalRepairCost, r.ImmediateRepairCost, r.ShortTermRepairCost,
		r.LongTermRepairCost, r.UnallocatedRepairCost, r.FCIScore, string(r.Band), r.ElementCount,
		cats, r.Notes, r.GeneratedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrReportFinal, "postgres: report for assessment %s", r.AssessmentID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert report for assessment %s", r.AssessmentID)
	}
	r.ID = id
	r.Status = model.ReportStatusDraft
	r.FinalizedAt = nil
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, orgID, id string) (*model.Report, error) {
	query, args := pgScoped(`SELECT `+reportColumns+` FROM reports WHERE id = $1`, []any{id}, orgID)
	r, err := scanPgReport(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, pgNotFound(err, "report", id)
	}
	return r, nil
}

func (s *PostgresStore) GetReportByAssessment(ctx context.Context, orgID, assessmentID string) (*model.Report, error) {
	query, args := pgScoped(`SELECT `+reportColumns+` FROM reports WHERE assessment_id = $1`, []any{assessmentID}, orgID)
	r, err := scanPgReport(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, pgNotFound(err, "report for assessment", assessmentID)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := newPgQuery(`SELECT ` + reportColumns + ` FROM reports WHERE true`)
	q.eq("organization_id", filter.OrganizationID)
	q.eq("building_id", filter.BuildingID)
	q.eq("status", string(filter.Status))
	q.sql += ` ORDER BY generated_at DESC, id`
	q.page(filter.Limit, filter.Offset)

	return s.queryReports(ctx, "list reports", q.sql, q.args...)
}

func (s *PostgresStore) FinalizeReport(ctx context.Context, orgID, id string) (*model.Report, error) {
	query, args := pgScoped(`UPDATE reports SET status = 'final', finalized_at = $1
		WHERE id = $2 AND status = 'draft'`, []any{time.Now().UTC(), id}, orgID)
	query += ` RETURNING ` + reportColumns

	r, err := scanPgReport(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: finalize report %s", id)
	}
	// Either missing or already final.
	if _, gerr := s.GetReport(ctx, orgID, id); gerr != nil {
		return nil, gerr
	}
	return nil, eris.Wrapf(ErrReportFinal, "postgres: report %s", id)
}

func (s *PostgresStore) DeleteReport(ctx context.Context, orgID, id string) error {
	query, args := pgScoped(`DELETE FROM reports WHERE id = $1`, []any{id}, orgID)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete report %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: report %s", id)
	}
	return nil
}

func (s *PostgresStore) LatestReports(ctx context.Context, orgID string, perBuilding int) ([]model.Report, error) {
	if perBuilding <= 0 {
		perBuilding = 1
	}
	var args []any
	where := ""
	if orgID != "" {
		args = append(args, orgID)
		where = "WHERE r.organization_id = $1"
	}
	args = append(args, perBuilding)
	query := fmt.Sprintf(latestReportsQuery, where, fmt.Sprintf("$%d", len(args)))

	return s.queryReports(ctx, "latest reports", query, args...)
}

func (s *PostgresStore) queryReports(ctx context.Context, op, query string, args ...any) ([]model.Report, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: "+op)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanPgReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: "+op+" iterate")
}

func scanPgReport(row scannable) (*model.Report, error) {
	var r model.Report
	var status, band string
	var cats []byte
	err := row.Scan(&r.ID, &r.AssessmentID, &r.BuildingID, &r.OrganizationID, &r.Title, &status,
		&r.ReplacementValue, &r.TotalRepairCost, &r.ImmediateRepairCost, &r.ShortTermRepairCost,
		&r.LongTermRepairCost, &r.UnallocatedRepairCost, &r.FCIScore, &band, &r.ElementCount,
		&cats, &r.Notes, &r.GeneratedAt, &r.FinalizedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)
	r.Band = model.Band(band)
	if len(cats) > 0 {
		if err := json.Unmarshal(cats, &r.Categories); err != nil {
			return nil, eris.Wrap(err, "unmarshal categories")
		}
		if len(r.Categories) == 0 {
			r.Categories = nil
		}
	}
	return &r, nil
}
