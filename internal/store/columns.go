package store

// Column lists shared by the Postgres and SQLite implementations. The scan
// helpers of each dialect read them in this order.
const (
	organizationColumns = `id, name, created_at`

	buildingColumns = `id, organization_id, name, type, construction_type, year_built,
		square_footage, replacement_value, cost_per_sqft, street_address, city, state,
		zip_code, status, created_at, updated_at`

	elementColumns = `id, code, major_group, group_element, individual_element, units, useful_life`

	assessmentColumns = `id, organization_id, building_id, type, status, assigned_to,
		description, notes, scheduled_date, started_at, completed_at, created_at, updated_at`

	assessmentElementColumns = `ae.id, ae.assessment_id, ae.element_id, ae.condition_rating,
		ae.notes, ae.photo_urls, ae.repair_cost, ae.updated_at,
		e.code, e.major_group, e.individual_element`

	deficiencyColumns = `d.id, d.assessment_element_id, d.description, d.cost, d.category,
		d.severity, d.photos`

	reportColumns = `id, assessment_id, building_id, organization_id, title, status,
		replacement_value, total_repair_cost, immediate_repair_cost, short_term_repair_cost,
		long_term_repair_cost, unallocated_repair_cost, fci_score, band, element_count,
		categories, notes, generated_at, finalized_at`
)

// latestReportsQuery ranks reports per building by when their assessment
// was carried out: completed_at, else created_at. generated_at only breaks
// ties, since refreshing a draft moves it. Valid in both dialects once
// placeholders are substituted.
const latestReportsQuery = `SELECT ` + reportColumns + ` FROM (
	SELECT r.*, ROW_NUMBER() OVER (
		PARTITION BY r.building_id
		ORDER BY COALESCE(a.completed_at, a.created_at) DESC, r.generated_at DESC, r.id
	) AS rn
	FROM reports r
	JOIN assessments a ON a.id = r.assessment_id %s
) ranked WHERE rn <= %s ORDER BY building_id, rn`
