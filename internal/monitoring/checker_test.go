package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-report/onyx-cli/internal/model"
)

func criticalSource() *mockSource {
	return &mockSource{latest: []model.Report{
		{ID: "r-1", BuildingID: "b-1", Band: model.BandCritical, FCIScore: 0.5},
	}}
}

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig(srv.URL)
	checker := NewChecker(newTestCollector(criticalSource()), fastAlerter(cfg), cfg)

	res, err := checker.Check(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, res.Snapshot.BuildingsReported)
}

func TestChecker_Check_DryRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig(srv.URL)
	checker := NewChecker(newTestCollector(criticalSource()), fastAlerter(cfg), cfg)

	res, err := checker.Check(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, int32(0), hits.Load())
}

func TestChecker_Check_CollectError(t *testing.T) {
	cfg := testMonitoringConfig("")
	checker := NewChecker(newTestCollector(&mockSource{latestErr: errors.New("boom")}), NewAlerter(cfg), cfg)

	_, err := checker.Check(context.Background(), false)
	require.Error(t, err)

	// Run swallows the error.
	checker.Run(context.Background())
}

func TestChecker_Check_Quiet(t *testing.T) {
	cfg := testMonitoringConfig("")
	checker := NewChecker(newTestCollector(&mockSource{}), NewAlerter(cfg), cfg)

	res, err := checker.Check(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
}
