package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/jobs"
	"github.com/dvloznov/card-segments/internal/jobs/inmemory"
	"github.com/dvloznov/card-segments/internal/lookup"
	"github.com/dvloznov/card-segments/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id int64, seg int) domain.Record {
	return domain.Record{
		FeatureVector: domain.FeatureVector{AccountID: id, TotalTxns: 3, AvgTxnAmt: 12.5, PctFood: 0.5},
		SegmentID:     seg,
	}
}

type testServer struct {
	handler http.Handler
	lookup  *lookup.Service
	store   *inmemory.Store
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, table domain.CanonicalTable, publisher jobs.Publisher) *testServer {
	t.Helper()
	svc := lookup.NewService(lookup.WithRand(rand.New(rand.NewPCG(1, 2))))
	svc.Replace(table)

	store := inmemory.NewStore()
	if publisher == nil {
		publisher = inmemory.NewQueue(4, store)
	}
	m := metrics.New()

	return &testServer{
		handler: NewRouter(Deps{
			Lookup:    svc,
			Publisher: publisher,
			JobStore:  store,
			Metrics:   m,
			Log:       zerolog.Nop(),
		}),
		lookup:  svc,
		store:   store,
		metrics: m,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGetAccount(t *testing.T) {
	s := newTestServer(t, domain.CanonicalTable{record(17, 2), record(18, 0)}, nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"found", "/api/accounts/17", http.StatusOK, ""},
		{"not found", "/api/accounts/999", http.StatusNotFound, `{"error":"account not found"}`},
		{"malformed id", "/api/accounts/abc", http.StatusBadRequest, `{"error":"invalid account id"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}

	resp := decode[AccountResponse](t, s.do(t, http.MethodGet, "/api/accounts/17", ""))
	assert.Equal(t, int64(17), resp.Account.AccountID)
	assert.Equal(t, "Digital Traveler", resp.Segment.Label)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.LookupRequests.WithLabelValues("get", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.LookupRequests.WithLabelValues("get", "miss")))
}

func TestRandomAccount(t *testing.T) {
	s := newTestServer(t, domain.CanonicalTable{record(1, 0), record(2, 1)}, nil)
	rec := s.do(t, http.MethodGet, "/api/accounts/random", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AccountResponse](t, rec)
	assert.Contains(t, []int64{1, 2}, resp.Account.AccountID)

	empty := newTestServer(t, nil, nil)
	rec = empty.do(t, http.MethodGet, "/api/accounts/random", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAccounts(t *testing.T) {
	s := newTestServer(t, domain.CanonicalTable{record(3, 0), record(1, 0)}, nil)
	rec := s.do(t, http.MethodGet, "/api/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_ids":[1,3],"count":2}`, rec.Body.String())
}

func TestSegments(t *testing.T) {
	s := newTestServer(t, domain.CanonicalTable{record(1, 0), record(2, 0), record(3, 2)}, nil)

	rec := s.do(t, http.MethodGet, "/api/segments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Segments []SegmentSummary `json:"segments"`
		Total    int              `json:"total"`
	}](t, rec)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Segments, 2)
	assert.Equal(t, "Urban Explorer", resp.Segments[0].Label)
	assert.Equal(t, 2, resp.Segments[0].Count)
	assert.Equal(t, 2, resp.Segments[1].SegmentID)

	rec = s.do(t, http.MethodGet, "/api/segments/42", "")
	require.Equal(t, http.StatusOK, rec.Code, "unknown segment is a placeholder, not an error")
	desc := decode[domain.Descriptor](t, rec)
	assert.Equal(t, 42, desc.SegmentID)
	assert.Equal(t, "Unknown", desc.Label)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/segments/x", "").Code)
}

func TestSegmentCatalog(t *testing.T) {
	// The catalog lists every described segment, including ones with no accounts.
	s := newTestServer(t, domain.CanonicalTable{record(1, 2)}, nil)

	rec := s.do(t, http.MethodGet, "/api/segments/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Segments []domain.Descriptor `json:"segments"`
		Total    int                 `json:"total"`
	}](t, rec)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Segments, 3)
	for i, d := range resp.Segments {
		assert.Equal(t, i, d.SegmentID)
		assert.NotEmpty(t, d.Label)
	}
	assert.Equal(t, "Urban Explorer", resp.Segments[0].Label)
}

func TestRebuildAndJobs(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(t, http.MethodPost, "/api/rebuild", `{"reason":"nightly"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[map[string]string](t, rec)
	require.NotEmpty(t, created["job_id"])
	assert.Equal(t, "pending", created["status"])

	rec = s.do(t, http.MethodGet, "/api/jobs/"+created["job_id"], "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[jobs.RebuildJob](t, rec)
	assert.Equal(t, "nightly", job.Reason)

	rec = s.do(t, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/jobs/missing", "").Code)
	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/rebuild", "").Code, "body is optional")
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/rebuild", "{").Code)
}

type closedPublisher struct{}

func (closedPublisher) PublishRebuild(context.Context, *jobs.RebuildJob) error {
	return errors.New("queue is closed")
}
func (closedPublisher) Close() error { return nil }

func TestRebuild_QueueUnavailable(t *testing.T) {
	s := newTestServer(t, nil, closedPublisher{})
	rec := s.do(t, http.MethodPost, "/api/rebuild", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, domain.CanonicalTable{record(1, 0)}, nil)

	rec := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, 1.0, health["accounts"])
	_, err := time.Parse(time.RFC3339, health["loaded_at"].(string))
	assert.NoError(t, err)

	s.do(t, http.MethodGet, "/api/accounts/1", "")
	rec = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "card_segments_lookup_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/accounts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
