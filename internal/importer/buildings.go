package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/model"
)

// BuildingCreator is the subset of store.Store the importer writes to.
type BuildingCreator interface {
	CreateBuilding(ctx context.Context, b *model.Building) error
}

// RowError describes a rejected input row. Line is 1-based and counts the
// header.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Result summarizes an import.
type Result struct {
	Imported int        `json:"imported"`
	Rejected []RowError `json:"rejected,omitempty"`
}

// header aliases map spreadsheet column names to building fields.
var headerAliases = map[string]string{
	"name":              "name",
	"building_name":     "name",
	"type":              "type",
	"building_type":     "type",
	"construction_type": "construction_type",
	"construction":      "construction_type",
	"year_built":        "year_built",
	"year":              "year_built",
	"square_footage":    "square_footage",
	"sqft":              "square_footage",
	"square_feet":       "square_footage",
	"replacement_value": "replacement_value",
	"cost_per_sqft":     "cost_per_sqft",
	"street_address":    "street_address",
	"street":            "street_address",
	"address":           "street_address",
	"city":              "city",
	"state":             "state",
	"zip_code":          "zip_code",
	"zip":               "zip_code",
	"status":            "status",
}

// Columns maps field names to record indexes.
type Columns map[string]int

// ParseHeader resolves a header row. Name and type columns are required.
func ParseHeader(header []string) (Columns, error) {
	cols := make(Columns)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		if field, ok := headerAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	var missing []string
	for _, f := range []string{"name", "type"} {
		if _, ok := cols[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("importer: header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c Columns) get(rec []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// ParseBuilding converts one record into a building owned by orgID.
func (c Columns) ParseBuilding(rec []string, orgID string) (*model.Building, error) {
	b := &model.Building{
		OrganizationID:   orgID,
		Name:             c.get(rec, "name"),
		Type:             c.get(rec, "type"),
		ConstructionType: c.get(rec, "construction_type"),
		Street:           c.get(rec, "street_address"),
		City:             c.get(rec, "city"),
		State:            c.get(rec, "state"),
		ZipCode:          c.get(rec, "zip_code"),
		Status:           model.BuildingStatus(strings.ToLower(c.get(rec, "status"))),
	}

	var problems []string
	if len(b.Name) < 2 {
		problems = append(problems, "name must be at least 2 characters")
	}
	if b.Type == "" {
		problems = append(problems, "type is required")
	}
	if b.Status != "" && !b.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", b.Status))
	}

	if v := c.get(rec, "year_built"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1800 || y > time.Now().Year()+5 {
			problems = append(problems, fmt.Sprintf("invalid year_built %q", v))
		}
		b.YearBuilt = y
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"square_footage", &b.SquareFootage},
		{"replacement_value", &b.ReplacementValue},
		{"cost_per_sqft", &b.CostPerSqft},
	} {
		v := c.get(rec, f.name)
		if v == "" {
			continue
		}
		n, err := parseAmount(v)
		if err != nil || n < 0 {
			problems = append(problems, fmt.Sprintf("invalid %s %q", f.name, v))
			continue
		}
		*f.dst = n
	}

	if len(problems) > 0 {
		return nil, eris.New(strings.Join(problems, "; "))
	}
	return b, nil
}

// parseAmount accepts plain numbers and spreadsheet currency like
// "$1,250,000".
func parseAmount(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	return strconv.ParseFloat(s, 64)
}

// Buildings reads a header row followed by building rows and creates each
// valid building. Invalid rows are collected in the result and do not stop
// the import. With dryRun set nothing is written.
func Buildings(ctx context.Context, dst BuildingCreator, orgID string, rowCh <-chan []string, errCh <-chan error, dryRun bool) (*Result, error) {
	log := zap.L().With(zap.String("component", "importer"), zap.String("organization_id", orgID))

	var (
		cols   Columns
		res    Result
		line   int
		runErr error
	)
	for rec := range rowCh {
		line++
		if runErr != nil {
			continue // drain so the reader can finish
		}
		if cols == nil {
			c, err := ParseHeader(rec)
			if err != nil {
				runErr = err
				continue
			}
			cols = c
			continue
		}
		if blank(rec) {
			continue
		}

		b, err := cols.ParseBuilding(rec, orgID)
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Line: line, Message: err.Error()})
			continue
		}
		if dryRun {
			res.Imported++
			continue
		}
		if err := dst.CreateBuilding(ctx, b); err != nil {
			runErr = eris.Wrapf(err, "importer: create building on line %d", line)
			continue
		}
		res.Imported++
	}
	for err := range errCh {
		if err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return &res, runErr
	}
	if cols == nil {
		return &res, eris.New("importer: file is empty")
	}

	log.Info("buildings imported",
		zap.Int("imported", res.Imported),
		zap.Int("rejected", len(res.Rejected)),
		zap.Bool("dry_run", dryRun),
	)
	return &res, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
