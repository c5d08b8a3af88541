package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
)

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	now := nowUTC()
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrganizationID, a.BuildingID, string(a.Type), string(a.Status), a.AssignedTo,
		a.Description, a.Notes, fmtTimePtr(a.ScheduledDate), fmtTimePtr(a.StartedAt),
		fmtTimePtr(a.CompletedAt), fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt),
	)
	return eris.Wrap(err, "sqlite: insert assessment")
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, orgID, id string) (*model.Assessment, error) {
	query, args := sqliteScoped(`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, []any{id}, orgID)
	a, err := scanSQLiteAssessment(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, sqliteNotFound(err, "assessment", id)
	}
	return a, nil
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	q := newSQLiteQuery(`SELECT ` + assessmentColumns + ` FROM assessments WHERE 1=1`)
	q.eq("organization_id", filter.OrganizationID)
	q.eq("building_id", filter.BuildingID)
	q.eq("status", string(filter.Status))
	q.eq("type", string(filter.Type))
	q.sql += ` ORDER BY created_at DESC, id`
	q.page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanSQLiteAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assessments iterate")
}

func (s *SQLiteStore) UpdateAssessment(ctx context.Context, orgID, id string, patch model.AssessmentPatch) (*model.Assessment, error) {
	if patch.Empty() {
		return s.GetAssessment(ctx, orgID, id)
	}

	q := newSQLiteQuery(`UPDATE assessments SET updated_at = ?`)
	q.args = append(q.args, fmtTime(nowUTC()))
	set := func(col string, v any) {
		q.sql += ", " + col + " = ?"
		q.args = append(q.args, v)
	}
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
		set("scheduled_date", fmtTime(*patch.ScheduledDate))
	}
	if patch.StartedAt != nil {
		set("started_at", fmtTime(*patch.StartedAt))
	}
	q.sql += " WHERE id = ?"
	q.args = append(q.args, id)
	q.eq("organization_id", orgID)
	q.sql += ` RETURNING ` + assessmentColumns

	a, err := scanSQLiteAssessment(s.db.QueryRowContext(ctx, q.sql, q.args...))
	if err != nil {
		return nil, sqliteNotFound(err, "assessment", id)
	}
	return a, nil
}

func (s *SQLiteStore) DeleteAssessment(ctx context.Context, orgID, id string) error {
	query, args := sqliteScoped(`DELETE FROM assessments WHERE id = ?`, []any{id}, orgID)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete assessment %s", id)
	}
	return checkRowsAffected(res, "assessment", id)
}

func (s *SQLiteStore) CompleteAssessment(ctx context.Context, orgID, id, notes string) (*model.Assessment, error) {
	now := fmtTime(nowUTC())
	query, args := sqliteScoped(
		`UPDATE assessments SET status = ?, completed_at = ?, updated_at = ?, notes = ?,
			started_at = COALESCE(started_at, ?)
		 WHERE id = ?`,
		[]any{string(model.AssessmentStatusCompleted), now, now, notes, now, id}, orgID)
	query += ` RETURNING ` + assessmentColumns

	a, err := scanSQLiteAssessment(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, sqliteNotFound(err, "assessment", id)
	}
	return a, nil
}

// --- assessment elements ---

func (s *SQLiteStore) ListAssessmentElements(ctx context.Context, assessmentID, majorGroup string) ([]model.AssessmentElement, error) {
	q := newSQLiteQuery(`SELECT ` + assessmentElementColumns + `
		FROM assessment_elements ae JOIN elements e ON e.id = ae.element_id
		WHERE ae.assessment_id = ?`)
	q.args = append(q.args, assessmentID)
	q.eq("e.major_group", majorGroup)
	q.sql += ` ORDER BY e.code, ae.id`

	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessment elements")
	}

	var out []model.AssessmentElement
	index := make(map[string]int)
	for rows.Next() {
		var ae model.AssessmentElement
		var rating sql.NullInt64
		var cost sql.NullFloat64
		var photos, updated string
		if err := rows.Scan(&ae.ID, &ae.AssessmentID, &ae.ElementID, &rating, &ae.Notes, &photos,
			&cost, &updated, &ae.Code, &ae.MajorGroup, &ae.Name); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan assessment element")
		}
		if rating.Valid {
			r := int(rating.Int64)
			ae.ConditionRating = &r
		}
		if cost.Valid {
			c := cost.Float64
			ae.RepairCost = &c
		}
		if err := unmarshalList([]byte(photos), &ae.PhotoURLs); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: unmarshal photo urls")
		}
		if ae.UpdatedAt, err = parseTime(updated); err != nil {
			rows.Close() //nolint:errcheck
			return nil, err
		}
		ae.Deficiencies = []model.Deficiency{}
		index[ae.ID] = len(out)
		out = append(out, ae)
	}
	err = rows.Err()
	rows.Close() //nolint:errcheck
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessment elements iterate")
	}
	if len(out) == 0 {
		return out, nil
	}

	defs, err := s.db.QueryContext(ctx, `SELECT `+deficiencyColumns+`
		FROM deficiencies d JOIN assessment_elements ae ON ae.id = d.assessment_element_id
		WHERE ae.assessment_id = ? ORDER BY d.rowid`, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deficiencies")
	}
	defer defs.Close()

	for defs.Next() {
		var d model.Deficiency
		var photos string
		if err := defs.Scan(&d.ID, &d.AssessmentElementID, &d.Description, &d.Cost, &d.Category, &d.Severity, &photos); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deficiency")
		}
		if err := unmarshalList([]byte(photos), &d.Photos); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal deficiency photos")
		}
		if i, ok := index[d.AssessmentElementID]; ok {
			out[i].Deficiencies = append(out[i].Deficiencies, d)
		}
	}
	return out, eris.Wrap(defs.Err(), "sqlite: list deficiencies iterate")
}

// UpsertAssessmentElement writes an element rating and replaces its
// deficiency set in one transaction.
func (s *SQLiteStore) UpsertAssessmentElement(ctx context.Context, ae *model.AssessmentElement) error {
	photos, err := marshalList(ae.PhotoURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal photo urls")
	}
	ae.UpdatedAt = nowUTC()
	if ae.ID == "" {
		ae.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert assessment element")
	}
	defer tx.Rollback() //nolint:errcheck

	var rating, cost any
	if ae.ConditionRating != nil {
		rating = *ae.ConditionRating
	}
	if ae.RepairCost != nil {
		cost = *ae.RepairCost
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO assessment_elements
			(id, assessment_id, element_id, condition_rating, notes, photo_urls, repair_cost, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (assessment_id, element_id) DO UPDATE SET
			condition_rating = excluded.condition_rating,
			notes = excluded.notes,
			photo_urls = excluded.photo_urls,
			repair_cost = excluded.repair_cost,
			updated_at = excluded.updated_at
		 RETURNING id`,
		ae.ID, ae.AssessmentID, ae.ElementID, rating, ae.Notes, string(photos), cost, fmtTime(ae.UpdatedAt),
	).Scan(&ae.ID)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert assessment element")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM deficiencies WHERE assessment_element_id = ?`, ae.ID); err != nil {
		return eris.Wrap(err, "sqlite: clear deficiencies")
	}
	for i := range ae.Deficiencies {
		d := &ae.Deficiencies[i]
		d.ID = uuid.New().String()
		d.AssessmentElementID = ae.ID
		dp, err := marshalList(d.Photos)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal deficiency photos")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deficiencies (id, assessment_element_id, description, cost, category, severity, photos)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.AssessmentElementID, d.Description, d.Cost, d.Category, d.Severity, string(dp),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert deficiency")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit assessment element")
}

func scanSQLiteAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var typ, status, created, updated string
	var scheduled, started, completed sql.NullString
	err := row.Scan(&a.ID, &a.OrganizationID, &a.BuildingID, &typ, &status, &a.AssignedTo,
		&a.Description, &a.Notes, &scheduled, &started, &completed, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Type = model.AssessmentType(typ)
	a.Status = model.AssessmentStatus(status)
	if a.ScheduledDate, err = parseNullTime(scheduled); err != nil {
		return nil, err
	}
	if a.StartedAt, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if a.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &a, nil
}
