package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgembed/compounde3d/internal/train"
)

func TestHealthz(t *testing.T) {
	s := NewServer(":0", "TransE", 1000)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatusReflectsReports(t *testing.T) {
	s := NewServer(":0", "RotatE", 500)

	s.ReportTraining(120, 0.0001, train.StepLog{
		Loss: 0.42, PositiveLoss: 0.5, NegativeLoss: 0.34,
	})
	s.ReportEval("valid", map[string]float64{"mrr": 0.31, "hits@10": 0.55})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "RotatE", snap.Model)
	assert.Equal(t, 500, snap.MaxSteps)
	assert.Equal(t, 120, snap.Step)
	assert.InDelta(t, 0.0001, snap.LearningRate, 1e-12)
	assert.InDelta(t, 0.42, snap.Loss, 1e-12)
	assert.Equal(t, "valid", snap.LastEvalName)
	assert.InDelta(t, 0.31, snap.LastEval["mrr"], 1e-12)
}

func TestStatusMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", "TransE", 1000)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
