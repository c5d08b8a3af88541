package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/db"
	"github.com/onyx-report/onyx-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent migrate runs across processes.
const migrationLockID = 4_617_203

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetOrganization = `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	sqlGetElement      = `SELECT ` + elementColumns + ` FROM elements WHERE id = $1`
	sqlCountElements   = `SELECT COUNT(*) FROM elements`

	sqlUpsertAssessmentElement = `INSERT INTO assessment_elements
		(id, assessment_id, element_id, condition_rating, notes, photo_urls, repair_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (assessment_id, element_id) DO UPDATE SET
			condition_rating = EXCLUDED.condition_rating,
			notes = EXCLUDED.notes,
			photo_urls = EXCLUDED.photo_urls,
			repair_cost = EXCLUDED.repair_cost,
			updated_at = EXCLUDED.updated_at
		RETURNING id`
	sqlDeleteDeficiencies = `DELETE FROM deficiencies WHERE assessment_element_id = $1`
	sqlInsertDeficiency   = `INSERT INTO deficiencies
		(id, assessment_element_id, description, cost, category, severity, photos)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// A stored final report never matches the conflict WHERE clause, so the
	// statement returns no row instead of overwriting it.
	sqlUpsertReport = `INSERT INTO reports
		(id, assessment_id, building_id, organization_id, title, status, replacement_value,
		 total_repair_cost, immediate_repair_cost, short_term_repair_cost, long_term_repair_cost,
		 unallocated_repair_cost, fci_score, band, element_count, categories, notes, generated_at)
		VALUES ($1, $2, $3, $4, $5, 'draft', $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (assessment_id) DO UPDATE SET
			title = EXCLUDED.title,
			replacement_value = EXCLUDED.replacement_value,
			total_repair_cost = EXCLUDED.total_repair_cost,
			immediate_repair_cost = EXCLUDED.immediate_repair_cost,
			short_term_repair_cost = EXCLUDED.short_term_repair_cost,
			long_term_repair_cost = EXCLUDED.long_term_repair_cost,
			unallocated_repair_cost = EXCLUDED.unallocated_repair_cost,
			fci_score = EXCLUDED.fci_score,
			band = EXCLUDED.band,
			element_count = EXCLUDED.element_count,
			categories = EXCLUDED.categories,
			notes = EXCLUDED.notes,
			generated_at = EXCLUDED.generated_at
		WHERE reports.status = 'draft'
		RETURNING id`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_organization":          sqlGetOrganization,
	"get_element":               sqlGetElement,
	"count_elements":            sqlCountElements,
	"upsert_assessment_element": sqlUpsertAssessmentElement,
	"delete_deficiencies":       sqlDeleteDeficiencies,
	"insert_deficiency":         sqlInsertDeficiency,
	"upsert_report":             sqlUpsertReport,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection. Tables may
	// not exist before the first migrate, so preparation is best effort.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				zap.L().Debug("postgres: skip prepare", zap.String("statement", name), zap.Error(err))
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies pending SQL migrations in lexicographic order under an
// advisory lock, recording each in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())", name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- organizations ---

func (s *PostgresStore) CreateOrganization(ctx context.Context, name string) (*model.Organization, error) {
	o := &model.Organization{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		o.ID, o.Name, o.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert organization")
	}
	return o, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	var o model.Organization
	err := s.pool.QueryRow(ctx, sqlGetOrganization, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, pgNotFound(err, "organization", id)
	}
	return &o, nil
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list organizations")
	}
	defer rows.Close()

	var out []model.Organization
	for rows.Next() {
		var o model.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan organization")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list organizations iterate")
}

// --- buildings ---

func (s *PostgresStore) CreateBuilding(ctx context.Context, b *model.Building) error {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.BuildingStatusActive
	}
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO buildings (`+buildingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.OrganizationID, b.Name, b.Type, b.ConstructionType, b.YearBuilt,
		b.SquareFootage, b.ReplacementValue, b.CostPerSqft, b.Street, b.City, b.State,
		b.ZipCode, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert building")
}

func (s *PostgresStore) GetBuilding(ctx context.Context, orgID, id string) (*model.Building, error) {
	query, args := pgScoped(`SELECT `+buildingColumns+` FROM buildings WHERE id = $1`, []any{id}, orgID)
	b, err := scanPgBuilding(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, pgNotFound(err, "building", id)
	}
	return b, nil
}

func (s *PostgresStore) ListBuildings(ctx context.Context, filter BuildingFilter) ([]model.Building, error) {
	q := newPgQuery(`SELECT ` + buildingColumns + ` FROM buildings WHERE true`)
	q.eq("organization_id", filter.OrganizationID)
	q.eq("type", filter.Type)
	q.eq("status", string(filter.Status))
	if filter.Search != "" {
		n := q.arg("%" + filter.Search + "%")
		q.sql += fmt.Sprintf(` AND (name ILIKE %[1]s OR street_address ILIKE %[1]s OR city ILIKE %[1]s)`, n)
	}
	q.sql += ` ORDER BY created_at DESC, id`
	q.page(filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buildings")
	}
	defer rows.Close()

	var out []model.Building
	for rows.Next() {
		b, err := scanPgBuilding(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan building")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list buildings iterate")
}

func (s *PostgresStore) UpdateBuilding(ctx context.Context, b *model.Building) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE buildings SET name = $1, type = $2, construction_type = $3, year_built = $4,
			square_footage = $5, replacement_value = $6, cost_per_sqft = $7, street_address = $8,
			city = $9, state = $10, zip_code = $11, status = $12, updated_at = $13
		 WHERE id = $14 AND organization_id = $15`,
		b.Name, b.Type, b.ConstructionType, b.YearBuilt, b.SquareFootage, b.ReplacementValue,
		b.CostPerSqft, b.Street, b.City, b.State, b.ZipCode, string(b.Status), b.UpdatedAt,
		b.ID, b.OrganizationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update building %s", b.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: building %s", b.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteBuilding(ctx context.Context, orgID, id string) error {
	query, args := pgScoped(`DELETE FROM buildings WHERE id = $1`, []any{id}, orgID)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete building %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: building %s", id)
	}
	return nil
}

// --- elements ---

func (s *PostgresStore) ListElements(ctx context.Context, filter ElementFilter) ([]model.Element, error) {
	q := newPgQuery(`SELECT ` + elementColumns + ` FROM elements WHERE true`)
	q.eq("major_group", filter.MajorGroup)
	if filter.Search != "" {
		n := q.arg("%" + filter.Search + "%")
		q.sql += fmt.Sprintf(` AND (group_element ILIKE %[1]s OR individual_element ILIKE %[1]s)`, n)
	}
	q.sql += ` ORDER BY major_group, group_element, individual_element`

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list elements")
	}
	defer rows.Close()

	var out []model.Element
	for rows.Next() {
		var e model.Element
		if err := rows.Scan(&e.ID, &e.Code, &e.MajorGroup, &e.GroupElement, &e.IndividualElement, &e.Units, &e.UsefulLife); err != nil {
			return nil, eris.Wrap(err, "postgres: scan element")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list elements iterate")
}

func (s *PostgresStore) GetElement(ctx context.Context, id string) (*model.Element, error) {
	var e model.Element
	err := s.pool.QueryRow(ctx, sqlGetElement, id).
		Scan(&e.ID, &e.Code, &e.MajorGroup, &e.GroupElement, &e.IndividualElement, &e.Units, &e.UsefulLife)
	if err != nil {
		return nil, pgNotFound(err, "element", id)
	}
	return &e, nil
}

func (s *PostgresStore) CountElements(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, sqlCountElements).Scan(&n)
	return n, eris.Wrap(err, "postgres: count elements")
}

// SeedElements bulk-loads the catalog when the elements table is empty. It
// returns the number of rows inserted, 0 when already seeded.
func (s *PostgresStore) SeedElements(ctx context.Context, elems []model.Element) (int, error) {
	n, err := s.CountElements(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 || len(elems) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(elems))
	for i, e := range elems {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows[i] = []any{id, e.Code, e.MajorGroup, e.GroupElement, e.IndividualElement, e.Units, e.UsefulLife}
	}
	inserted, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "elements",
		Columns:      []string{"id", "code", "major_group", "group_element", "individual_element", "units", "useful_life"},
		ConflictKeys: []string{"code"},
		UpdateCols:   []string{},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: seed elements")
	}
	return int(inserted), nil
}

// --- helpers ---

// pgQuery builds a dynamic WHERE clause with numbered placeholders.
type pgQuery struct {
	sql  string
	args []any
}

func newPgQuery(base string) *pgQuery {
	return &pgQuery{sql: base}
}

func (q *pgQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// eq adds "AND col = $n" when value is non-empty.
func (q *pgQuery) eq(col, value string) {
	if value == "" {
		return
	}
	q.sql += fmt.Sprintf(" AND %s = %s", col, q.arg(value))
}

func (q *pgQuery) page(limit, offset int) {
	q.sql += " LIMIT " + q.arg(listLimit(limit))
	if offset > 0 {
		q.sql += " OFFSET " + q.arg(offset)
	}
}

// pgScoped appends an organization filter when orgID is set.
func pgScoped(query string, args []any, orgID string) (string, []any) {
	if orgID == "" {
		return query, args
	}
	args = append(args, orgID)
	return query + fmt.Sprintf(" AND organization_id = $%d", len(args)), args
}

func pgNotFound(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: %s %s", entity, id)
	}
	return eris.Wrapf(err, "postgres: get %s %s", entity, id)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPgBuilding(row scannable) (*model.Building, error) {
	var b model.Building
	var status string
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Type, &b.ConstructionType, &b.YearBuilt,
		&b.SquareFootage, &b.ReplacementValue, &b.CostPerSqft, &b.Street, &b.City, &b.State,
		&b.ZipCode, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BuildingStatus(status)
	return &b, nil
}
