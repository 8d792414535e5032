package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/metrics"
	"github.com/signalnine/matbench/internal/models"
	"github.com/signalnine/matbench/internal/report"
	"github.com/signalnine/matbench/internal/result"
	"github.com/signalnine/matbench/internal/server"
)

func run(location, id, users string) *result.Results {
	exit := 0
	return &result.Results{
		Always: result.Always{
			Location:       location,
			ImportSettings: result.ImportSettings{"users": users},
			ExitCode:       &exit,
		},
		LTS: &models.Payload{
			Metadata: models.Metadata{RunID: id},
			Results:  models.Results{Requests: 10, Throughput: 50},
		},
	}
}

func newServer(t *testing.T) (*server.Server, *server.Index) {
	t.Helper()
	idx := server.NewIndex()
	idx.Add(run("/r/b", "id-b", "8"))
	idx.Add(run("/r/a", "id-a", "4"))
	return server.New(idx, server.Options{Logger: logging.Discard(), Metrics: metrics.New()}), idx
}

func get(t *testing.T, s *server.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListRuns(t *testing.T) {
	s, _ := newServer(t)
	rec := get(t, s, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []server.RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "/r/a", views[0].Location)
	assert.Equal(t, "id-a", views[0].RunID)
	assert.Nil(t, views[0].Start)
}

func TestGetRunAndPayload(t *testing.T) {
	s, _ := newServer(t)

	rec := get(t, s, "/v1/runs/id-b")
	require.Equal(t, http.StatusOK, rec.Code)
	var v server.RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "/r/b", v.Location)

	rec = get(t, s, "/v1/runs/id-b/lts")
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 10, p.Results.Requests)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/nope").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/nope/lts").Code)
}

func TestReport(t *testing.T) {
	s, idx := newServer(t)
	idx.Add(run("/r/c", "id-c", "4"))

	rec := get(t, s, "/v1/report?group_by=users")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []report.GroupSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].Group)
	assert.Equal(t, 2, got[0].Runs)
}

func TestHealthAndMetrics(t *testing.T) {
	s, idx := newServer(t)
	idx.Remove("/r/a")

	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","runs":1}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, get(t, s, "/metrics").Code)
}
