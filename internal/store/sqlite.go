package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as fixed-width UTC text so that they sort lexically.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps per-connection pragmas in force and serializes
	// writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS buildings (
	id                TEXT PRIMARY KEY,
	organization_id   TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	name              TEXT NOT NULL,
	type              TEXT NOT NULL DEFAULT '',
	construction_type TEXT NOT NULL DEFAULT '',
	year_built        INTEGER NOT NULL DEFAULT 0,
	square_footage    REAL NOT NULL DEFAULT 0,
	replacement_value REAL NOT NULL DEFAULT 0,
	cost_per_sqft     REAL NOT NULL DEFAULT 0,
	street_address    TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip_code          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'active',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_buildings_org ON buildings(organization_id);

CREATE TABLE IF NOT EXISTS elements (
	id                 TEXT PRIMARY KEY,
	code               TEXT NOT NULL UNIQUE,
	major_group        TEXT NOT NULL,
	group_element      TEXT NOT NULL,
	individual_element TEXT NOT NULL,
	units              TEXT NOT NULL DEFAULT '',
	useful_life        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	building_id     TEXT NOT NULL REFERENCES buildings(id) ON DELETE CASCADE,
	type            TEXT NOT NULL DEFAULT 'field_assessment',
	status          TEXT NOT NULL DEFAULT 'pending',
	assigned_to     TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	scheduled_date  TEXT,
	started_at      TEXT,
	completed_at    TEXT,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_org ON assessments(organization_id);
CREATE INDEX IF NOT EXISTS idx_assessments_building ON assessments(building_id);

CREATE TABLE IF NOT EXISTS assessment_elements (
	id               TEXT PRIMARY KEY,
	assessment_id    TEXT NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
	element_id       TEXT NOT NULL REFERENCES elements(id),
	condition_rating INTEGER CHECK (condition_rating BETWEEN 1 AND 5),
	notes            TEXT NOT NULL DEFAULT '',
	photo_urls       TEXT NOT NULL DEFAULT '[]',
	repair_cost      REAL CHECK (repair_cost >= 0),
	updated_at       TEXT NOT NULL,
	UNIQUE (assessment_id, element_id)
);

CREATE TABLE IF NOT EXISTS deficiencies (
	id                    TEXT PRIMARY KEY,
	assessment_element_id TEXT NOT NULL REFERENCES assessment_elements(id) ON DELETE CASCADE,
	description           TEXT NOT NULL DEFAULT '',
	cost                  REAL NOT NULL DEFAULT 0,
	category              TEXT NOT NULL DEFAULT '',
	severity              TEXT NOT NULL DEFAULT '',
	photos                TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_deficiencies_ae ON deficiencies(assessment_element_id);

CREATE TABLE IF NOT EXISTS reports (
	id                      TEXT PRIMARY KEY,
	assessment_id           TEXT NOT NULL UNIQUE REFERENCES assessments(id) ON DELETE CASCADE,
	building_id             TEXT NOT NULL REFERENCES buildings(id) ON DELETE CASCADE,
	organization_id         TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	title                   TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL DEFAULT 'draft',
	replacement_value       REAL NOT NULL DEFAULT 0,
	total_repair_cost       REAL NOT NULL DEFAULT 0,
	immediate_repair_cost   REAL NOT NULL DEFAULT 0,
	short_term_repair_cost  REAL NOT NULL DEFAULT 0,
	long_term_repair_cost   REAL NOT NULL DEFAULT 0,
	unallocated_repair_cost REAL NOT NULL DEFAULT 0,
	fci_score               REAL NOT NULL DEFAULT 0,
	band                    TEXT NOT NULL DEFAULT '',
	element_count           INTEGER NOT NULL DEFAULT 0,
	categories              TEXT NOT NULL DEFAULT '[]',
	notes                   TEXT NOT NULL DEFAULT '',
	generated_at            TEXT NOT NULL,
	finalized_at            TEXT
);

CREATE INDEX IF NOT EXISTS idx_reports_org ON reports(organization_id);
CREATE INDEX IF NOT EXISTS idx_reports_building_generated ON reports(building_id, generated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- organizations ---

func (s *SQLiteStore) CreateOrganization(ctx context.Context, name string) (*model.Organization, error) {
	o := &model.Organization{ID: uuid.New().String(), Name: name, CreatedAt: nowUTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`,
		o.ID, o.Name, fmtTime(o.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert organization")
	}
	return o, nil
}

func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	o, err := scanSQLiteOrganization(s.db.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteNotFound(err, "organization", id)
	}
	return o, nil
}

func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list organizations")
	}
	defer rows.Close()

	var out []model.Organization
	for rows.Next() {
		o, err := scanSQLiteOrganization(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan organization")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list organizations iterate")
}

// --- buildings ---

func (s *SQLiteStore) CreateBuilding(ctx context.Context, b *model.Building) error {
	now := nowUTC()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.BuildingStatusActive
	}
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buildings (`+buildingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OrganizationID, b.Name, b.Type, b.ConstructionType, b.YearBuilt,
		b.SquareFootage, b.ReplacementValue, b.CostPerSqft, b.Street, b.City, b.State,
		b.ZipCode, string(b.Status), fmtTime(b.CreatedAt), fmtTime(b.UpdatedAt),
	)
	return eris.Wrap(err, "sqlite: insert building")
}

func (s *SQLiteStore) GetBuilding(ctx context.Context, orgID, id string) (*model.Building, error) {
	query, args := sqliteScoped(`SELECT `+buildingColumns+` FROM buildings WHERE id = ?`, []any{id}, orgID)
	b, err := scanSQLiteBuilding(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, sqliteNotFound(err, "building", id)
	}
	return b, nil
}

func (s *SQLiteStore) ListBuildings(ctx context.Context, filter BuildingFilter) ([]model.Building, error) {
	q := newSQLiteQuery(`SELECT ` + buildingColumns + ` FROM buildings WHERE 1=1`)
	q.eq("organization_id", filter.OrganizationID)
	q.eq("type", filter.Type)
	q.eq("status", string(filter.Status))
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q.sql += ` AND (name LIKE ? OR street_address LIKE ? OR city LIKE ?)`
		q.args = append(q.args, like, like, like)
	}
	q.sql += ` ORDER BY created_at DESC, id`
	q.page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list buildings")
	}
	defer rows.Close()

	var out []model.Building
	for rows.Next() {
		b, err := scanSQLiteBuilding(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list buildings iterate")
}

func (s *SQLiteStore) UpdateBuilding(ctx context.Context, b *model.Building) error {
	b.UpdatedAt = nowUTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE buildings SET name = ?, type = ?, construction_type = ?, year_built = ?,
			square_footage = ?, replacement_value = ?, cost_per_sqft = ?, street_address = ?,
			city = ?, state = ?, zip_code = ?, status = ?, updated_at = ?
		 WHERE id = ? AND organization_id = ?`,
		b.Name, b.Type, b.ConstructionType, b.YearBuilt, b.SquareFootage, b.ReplacementValue,
		b.CostPerSqft, b.Street, b.City, b.State, b.ZipCode, string(b.Status), fmtTime(b.UpdatedAt),
		b.ID, b.OrganizationID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update building %s", b.ID)
	}
	return checkRowsAffected(res, "building", b.ID)
}

func (s *SQLiteStore) DeleteBuilding(ctx context.Context, orgID, id string) error {
	query, args := sqliteScoped(`DELETE FROM buildings WHERE id = ?`, []any{id}, orgID)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete building %s", id)
	}
	return checkRowsAffected(res, "building", id)
}

// --- elements ---

func (s *SQLiteStore) ListElements(ctx context.Context, filter ElementFilter) ([]model.Element, error) {
	q := newSQLiteQuery(`SELECT ` + elementColumns + ` FROM elements WHERE 1=1`)
	q.eq("major_group", filter.MajorGroup)
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q.sql += ` AND (group_element LIKE ? OR individual_element LIKE ?)`
		q.args = append(q.args, like, like)
	}
	q.sql += ` ORDER BY major_group, group_element, individual_element`

	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list elements")
	}
	defer rows.Close()

	var out []model.Element
	for rows.Next() {
		var e model.Element
		if err := rows.Scan(&e.ID, &e.Code, &e.MajorGroup, &e.GroupElement, &e.IndividualElement, &e.Units, &e.UsefulLife); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan element")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list elements iterate")
}

func (s *SQLiteStore) GetElement(ctx context.Context, id string) (*model.Element, error) {
	var e model.Element
	err := s.db.QueryRowContext(ctx, `SELECT `+elementColumns+` FROM elements WHERE id = ?`, id).
		Scan(&e.ID, &e.Code, &e.MajorGroup, &e.GroupElement, &e.IndividualElement, &e.Units, &e.UsefulLife)
	if err != nil {
		return nil, sqliteNotFound(err, "element", id)
	}
	return &e, nil
}

func (s *SQLiteStore) CountElements(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count elements")
}

// SeedElements inserts the catalog in one transaction when the elements
// table is empty.
func (s *SQLiteStore) SeedElements(ctx context.Context, elems []model.Element) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin seed")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count elements")
	}
	if n > 0 || len(elems) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, e := range elems {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO elements (`+elementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, e.Code, e.MajorGroup, e.GroupElement, e.IndividualElement, e.Units, e.UsefulLife,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert element %s", e.Code)
		}
		if c, _ := res.RowsAffected(); c > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit seed")
	}
	return inserted, nil
}

// helpers

type sqliteQuery struct {
	sql  string
	args []any
}

func newSQLiteQuery(base string) *sqliteQuery {
	return &sqliteQuery{sql: base}
}

func (q *sqliteQuery) eq(col, value string) {
	if value == "" {
		return
	}
	q.sql += " AND " + col + " = ?"
	q.args = append(q.args, value)
}

func (q *sqliteQuery) page(limit, offset int) {
	q.sql += " LIMIT ?"
	q.args = append(q.args, listLimit(limit))
	if offset > 0 {
		q.sql += " OFFSET ?"
		q.args = append(q.args, offset)
	}
}

func sqliteScoped(query string, args []any, orgID string) (string, []any) {
	if orgID == "" {
		return query, args
	}
	return query + " AND organization_id = ?", append(args, orgID)
}

func sqliteNotFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return eris.Wrapf(err, "sqlite: get %s %s", entity, id)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sqlite: invalid timestamp %q", s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanSQLiteOrganization(row scannable) (*model.Organization, error) {
	var o model.Organization
	var created string
	if err := row.Scan(&o.ID, &o.Name, &created); err != nil {
		return nil, err
	}
	var err error
	o.CreatedAt, err = parseTime(created)
	return &o, err
}

func scanSQLiteBuilding(row scannable) (*model.Building, error) {
	var b model.Building
	var status, created, updated string
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Type, &b.ConstructionType, &b.YearBuilt,
		&b.SquareFootage, &b.ReplacementValue, &b.CostPerSqft, &b.Street, &b.City, &b.State,
		&b.ZipCode, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	b.Status = model.BuildingStatus(status)
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &b, nil
}
