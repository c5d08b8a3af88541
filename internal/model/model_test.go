package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessmentStatusValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status AssessmentStatus
		want   bool
	}{
		{AssessmentStatusPending, true},
		{AssessmentStatusInProgress, true},
		{AssessmentStatusCompleted, true},
		{"done", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.Valid())
		})
	}
}

func TestAssessmentTypeValid(t *testing.T) {
	t.Parallel()
	assert.True(t, AssessmentTypePre.Valid())
	assert.True(t, AssessmentTypeField.Valid())
	assert.False(t, AssessmentType("walkthrough").Valid())
}

func TestBuildingStatusValid(t *testing.T) {
	t.Parallel()
	assert.True(t, BuildingStatusActive.Valid())
	assert.True(t, BuildingStatusArchived.Valid())
	assert.False(t, BuildingStatus("demolished").Valid())
}

func TestValidRating(t *testing.T) {
	t.Parallel()
	for r := 1; r <= 5; r++ {
		assert.True(t, ValidRating(r), "rating %d", r)
	}
	assert.False(t, ValidRating(0))
	assert.False(t, ValidRating(6))
	assert.False(t, ValidRating(-1))
}

func TestBuildingAge(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 25, Building{YearBuilt: 2000}.Age(2025))
	assert.Equal(t, 0, Building{}.Age(2025))
	assert.Equal(t, 0, Building{YearBuilt: 2030}.Age(2025))
}

func TestAssessmentPatchEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, AssessmentPatch{}.Empty())

	notes := "roof leak on north side"
	assert.False(t, AssessmentPatch{Notes: &notes}.Empty())

	status := AssessmentStatusInProgress
	assert.False(t, AssessmentPatch{Status: &status}.Empty())
}
