package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
)

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = model.AssessmentStatusPending
	}
	if a.Type == "" {
		a.Type = model.AssessmentTypeField
	}
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.OrganizationID, a.BuildingID, string(a.Type), string(a.Status), a.AssignedTo,
		a.Description, a.Notes, a.ScheduledDate, a.StartedAt, a.CompletedAt, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert assessment")
}

func (s *PostgresStore) GetAssessment(ctx context.Context, orgID, id string) (*model.Assessment, error) {
	query, args := pgScoped(`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, []any{id}, orgID)
	a, err := scanPgAssessment(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, pgNotFound(err, "assessment", id)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	q := newPgQuery(`SELECT ` + assessmentColumns + ` FROM assessments WHERE true`)
	q.eq("organization_id", filter.OrganizationID)
	q.eq("building_id", filter.BuildingID)
	q.eq("status", string(filter.Status))
	q.eq("type", string(filter.Type))
	q.sql += ` ORDER BY created_at DESC, id`
	q.page(filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanPgAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assessments iterate")
}

func (s *PostgresStore) UpdateAssessment(ctx context.Context, orgID, id string, patch model.AssessmentPatch) (*model.Assessment, error) {
	if patch.Empty() {
		return s.GetAssessment(ctx, orgID, id)
	}

	q := newPgQuery(`UPDATE assessments SET updated_at = `)
	q.sql += q.arg(time.Now().UTC())
	set := func(col string, v any) { q.sql += fmt.Sprintf(", %s = %s", col, q.arg(v)) }
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.AssignedTo != nil {
		set("assigned_to", *patch.AssignedTo)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.ScheduledDate != nil {
		set("scheduled_date", *patch.ScheduledDate)
	}
	if patch.StartedAt != nil {
		set("started_at", *patch.StartedAt)
	}
	q.sql += " WHERE id = " + q.arg(id)
	q.eq("organization_id", orgID)
	q.sql += ` RETURNING ` + assessmentColumns

	a, err := scanPgAssessment(s.pool.QueryRow(ctx, q.sql, q.args...))
	if err != nil {
		return nil, pgNotFound(err, "assessment", id)
	}
	return a, nil
}

func (s *PostgresStore) DeleteAssessment(ctx context.Context, orgID, id string) error {
	query, args := pgScoped(`DELETE FROM assessments WHERE id = $1`, []any{id}, orgID)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete assessment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: assessment %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteAssessment(ctx context.Context, orgID, id, notes string) (*model.Assessment, error) {
	now := time.Now().UTC()
	query, args := pgScoped(
		`UPDATE assessments SET status = $1, completed_at = $2, updated_at = $2, notes = $3,
			started_at = COALESCE(started_at, $2)
		 WHERE id = $4`,
		[]any{string(model.AssessmentStatusCompleted), now, notes, id}, orgID)
	query += ` RETURNING ` + assessmentColumns

	a, err := scanPgAssessment(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, pgNotFound(err, "assessment", id)
	}
	return a, nil
}

// --- assessment elements ---

func (s *PostgresStore) ListAssessmentElements(ctx context.Context, assessmentID, majorGroup string) ([]model.AssessmentElement, error) {
	q := newPgQuery(`SELECT ` + assessmentElementColumns + `
		FROM assessment_elements ae JOIN elements e ON e.id = ae.element_id
		WHERE ae.assessment_id = `)
	q.sql += q.arg(assessmentID)
	q.eq("e.major_group", majorGroup)
	q.sql += ` ORDER BY e.code, ae.id`

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessment elements")
	}
	defer rows.Close()

	var out []model.AssessmentElement
	index := make(map[string]int)
	for rows.Next() {
		var ae model.AssessmentElement
		var rating *int16
		var photos []byte
		if err := rows.Scan(&ae.ID, &ae.AssessmentID, &ae.ElementID, &rating, &ae.Notes, &photos,
			&ae.RepairCost, &ae.UpdatedAt, &ae.Code, &ae.MajorGroup, &ae.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment element")
		}
		if rating != nil {
			r := int(*rating)
			ae.ConditionRating = &r
		}
		if err := unmarshalList(photos, &ae.PhotoURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal photo urls")
		}
		ae.Deficiencies = []model.Deficiency{}
		index[ae.ID] = len(out)
		out = append(out, ae)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list assessment elements iterate")
	}
	if len(out) == 0 {
		return out, nil
	}

	defs, err := s.pool.Query(ctx, `SELECT `+deficiencyColumns+`
		FROM deficiencies d JOIN assessment_elements ae ON ae.id = d.assessment_element_id
		WHERE ae.assessment_id = $1 ORDER BY d.id`, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deficiencies")
	}
	defer defs.Close()

	for defs.Next() {
		var d model.Deficiency
		var photos []byte
		if err := defs.Scan(&d.ID, &d.AssessmentElementID, &d.Description, &d.Cost, &d.Category, &d.Severity, &photos); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deficiency")
		}
		if err := unmarshalList(photos, &d.Photos); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal deficiency photos")
		}
		if i, ok := index[d.AssessmentElementID]; ok {
			out[i].Deficiencies = append(out[i].Deficiencies, d)
		}
	}
	return out, eris.Wrap(defs.Err(), "postgres: list deficiencies iterate")
}

// UpsertAssessmentElement writes an element rating and replaces its
// deficiency set in one transaction.
func (s *PostgresStore) UpsertAssessmentElement(ctx context.Context, ae *model.AssessmentElement) error {
	photos, err := marshalList(ae.PhotoURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal photo urls")
	}
	ae.UpdatedAt = time.Now().UTC()
	if ae.ID == "" {
		ae.ID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert assessment element")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var rating *int16
	if ae.ConditionRating != nil {
		r := int16(*ae.ConditionRating)
		rating = &r
	}
	if err := tx.QueryRow(ctx, sqlUpsertAssessmentElement,
		ae.ID, ae.AssessmentID, ae.ElementID, rating, ae.Notes, photos, ae.RepairCost, ae.UpdatedAt,
	).Scan(&ae.ID); err != nil {
		return eris.Wrap(err, "postgres: upsert assessment element")
	}

	if _, err := tx.Exec(ctx, sqlDeleteDeficiencies, ae.ID); err != nil {
		return eris.Wrap(err, "postgres: clear deficiencies")
	}
	for i := range ae.Deficiencies {
		d := &ae.Deficiencies[i]
		d.ID = uuid.New().String()
		d.AssessmentElementID = ae.ID
		dp, err := marshalList(d.Photos)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal deficiency photos")
		}
		if _, err := tx.Exec(ctx, sqlInsertDeficiency,
			d.ID, d.AssessmentElementID, d.Description, d.Cost, d.Category, d.Severity, dp,
		); err != nil {
			return eris.Wrap(err, "postgres: insert deficiency")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit assessment element")
}

func scanPgAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var typ, status string
	err := row.Scan(&a.ID, &a.OrganizationID, &a.BuildingID, &typ, &status, &a.AssignedTo,
		&a.Description, &a.Notes, &a.ScheduledDate, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = model.AssessmentType(typ)
	a.Status = model.AssessmentStatus(status)
	return &a, nil
}

func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

func unmarshalList[T any](data []byte, dst *[]T) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	if len(*dst) == 0 {
		*dst = nil
	}
	return nil
}
