package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/sift/internal/app"
	"github.com/bobmcallan/sift/internal/common"
	"github.com/bobmcallan/sift/internal/models"
	"github.com/bobmcallan/sift/internal/services/screen"
)

type stubScreenService struct {
	declineParams models.DeclineScreenParams
	patternParams models.PatternScreenParams
	resp          *models.ScreenResponse
	err           error
}

func (s *stubScreenService) ScreenDecline(_ context.Context, params models.DeclineScreenParams) (*models.ScreenResponse, error) {
	s.declineParams = params
	return s.resp, s.err
}

func (s *stubScreenService) ScreenPattern(_ context.Context, params models.PatternScreenParams) (*models.ScreenResponse, error) {
	s.patternParams = params
	return s.resp, s.err
}

func newTestServer(svc *stubScreenService) *Server {
	a := &app.App{
		Config:        common.NewDefaultConfig(),
		Logger:        common.NewSilentLogger(),
		ScreenService: svc,
	}
	return NewServer(a)
}

func TestHandleScreenDecline(t *testing.T) {
	svc := &stubScreenService{
		resp: &models.ScreenResponse{
			Candidates: []*models.ScreeningCandidate{
				{Symbol: "ALFA", Price: 80},
			},
			GeneratedAt:   time.Now(),
			SchemaVersion: models.ScanSchemaVersion,
		},
	}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/screen/decline?start=2025-03-01&index=nasdaq&limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-03-01", svc.declineParams.Start)
	assert.Equal(t, "nasdaq", svc.declineParams.Index)
	assert.Equal(t, 10, svc.declineParams.Limit)

	var body models.ScreenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Candidates, 1)
	assert.Equal(t, "ALFA", body.Candidates[0].Symbol)
}

func TestHandleScreenDeclineMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubScreenService{})

	req := httptest.NewRequest(http.MethodPost, "/api/screen/decline", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleScreenDeclineValidationError(t *testing.T) {
	svc := &stubScreenService{err: errors.New("invalid start date")}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/screen/decline?start=bogus", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "invalid start date")
}

func TestHandleScreenDeclineRateLimited(t *testing.T) {
	svc := &stubScreenService{err: screen.ErrRateLimited}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/screen/decline?start=2025-03-01", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Code)
}

func TestHandleScreenPattern(t *testing.T) {
	svc := &stubScreenService{
		resp: &models.ScreenResponse{SchemaVersion: models.ScanSchemaVersion},
	}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/screen/pattern?index=dowjones", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dowjones", svc.patternParams.Index)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&stubScreenService{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(&stubScreenService{})

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["version"])
}
