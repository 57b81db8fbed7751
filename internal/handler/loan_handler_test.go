package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-queue/internal/clock"
	"loan-queue/internal/config"
	"loan-queue/internal/repository"
	"loan-queue/internal/service"
)

type testServer struct {
	handler http.Handler
	clock   *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := repository.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.UpsertMember(context.Background(),
			fmt.Sprintf("A-%03d", i), fmt.Sprintf("user-%d", i), "Anggota", "active"))
	}

	cfg := config.Default()
	clk := clock.NewManual(time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC))
	limiter := service.NewRateLimiter(clk, cfg.Queue.MaxActiveLoansPerMember, cfg.Queue.MaxSubmissionsPerMinute)
	queue := service.NewQueueService(repo, repo, limiter, nil, nil, clk, service.Options{
		Queue:      cfg.Queue,
		Location:   cfg.Location(),
		MemberRole: cfg.Auth.MemberRole,
	})
	analytics := service.NewAnalyticsService(repo, clk, cfg.Location())

	mux := http.NewServeMux()
	NewLoanHandler(queue, analytics).Register(mux, cfg.Auth)
	return &testServer{handler: CORS("*", AccessLog(time.Second, mux)), clock: clk}
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, userID, role string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Role", role)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func (s *testServer) reviewer(t *testing.T, method, path string, body any) (int, response) {
	return s.do(t, method, path, "pengurus-1", "pengurus", body)
}

func (s *testServer) submit(t *testing.T, member string, amount any) string {
	t.Helper()
	code, resp := s.reviewer(t, http.MethodPost, "/api/fcfs/submit", map[string]any{
		"amount":       amount,
		"tenor_months": 12,
		"purpose":      "modal usaha",
		"member_id":    member,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	var res struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	return res.JobID
}

func TestLoanHandler_SubmitAndQueue(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.reviewer(t, http.MethodPost, "/api/fcfs/submit", map[string]any{
		"amount":       "1000000",
		"tenor_months": 12,
		"purpose":      "modal usaha",
		"member_id":    "A-001",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Loan submitted", resp.Message)
	assert.JSONEq(t, `{"job_id":"P-20240304-001","position":1,"burst_time":25,"estimated_wait":25}`, string(resp.Data))

	s.submit(t, "A-002", 500000)

	code, resp = s.do(t, http.MethodGet, "/api/fcfs/queue", "user-1", "anggota", nil)
	require.Equal(t, http.StatusOK, code)
	var view struct {
		Jobs []struct {
			ID       string `json:"id"`
			Position int    `json:"position"`
		} `json:"jobs"`
		Stats struct {
			TotalQueued int `json:"total_queued"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	require.Len(t, view.Jobs, 2)
	assert.Equal(t, 2, view.Jobs[1].Position)
	assert.Equal(t, 2, view.Stats.TotalQueued)
}

func TestLoanHandler_SubmitValidation(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.reviewer(t, http.MethodPost, "/api/fcfs/submit", map[string]any{
		"amount":       0,
		"tenor_months": 12,
		"purpose":      "modal usaha",
		"member_id":    "A-001",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
	assert.JSONEq(t, `{"field":"amount"}`, string(resp.Data))

	req := httptest.NewRequest(http.MethodPost, "/api/fcfs/submit", bytes.NewBufferString("{not json"))
	req.Header.Set("X-User-ID", "pengurus-1")
	req.Header.Set("X-User-Role", "pengurus")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoanHandler_Authentication(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/api/fcfs/queue", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", resp.Status)

	code, _ = s.do(t, http.MethodPost, "/api/fcfs/process-next", "user-1", "anggota", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPost, "/api/fcfs/prioritize/P-20240304-001", "pengurus-1", "pengawas", map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodGet, "/api/fcfs/analytics/convoy", "user-1", "anggota", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestLoanHandler_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/fcfs/submit", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-User-Role")
}

func TestLoanHandler_ReviewFlow(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.reviewer(t, http.MethodPost, "/api/fcfs/process-next", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No loans in queue", resp.Message)

	code, resp = s.reviewer(t, http.MethodGet, "/api/fcfs/next", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "No loans in queue", resp.Message)
	assert.Empty(t, resp.Data)

	id := s.submit(t, "A-001", 1000000)
	s.submit(t, "A-002", 1000000)

	code, resp = s.reviewer(t, http.MethodGet, "/api/fcfs/next", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), id)

	code, _ = s.reviewer(t, http.MethodPost, "/api/fcfs/process-next", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.reviewer(t, http.MethodPost, "/api/fcfs/process-next", nil)
	assert.Equal(t, http.StatusConflict, code, "single reviewer mode")

	code, resp = s.reviewer(t, http.MethodPost, "/api/fcfs/approve/"+id, map[string]string{"notes": "lengkap"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Loan approved", resp.Message)

	code, _ = s.reviewer(t, http.MethodPost, "/api/fcfs/reject/"+id, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, resp = s.reviewer(t, http.MethodPost, "/api/fcfs/approve/P-19990101-001", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Loan not found", resp.Message)

	code, resp = s.reviewer(t, http.MethodGet, "/api/fcfs/processed?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), id)

	code, _ = s.reviewer(t, http.MethodGet, "/api/fcfs/processed?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoanHandler_SkipAndOverrides(t *testing.T) {
	s := newTestServer(t)
	first := s.submit(t, "A-001", 1000000)
	s.submit(t, "A-002", 1000000)
	third := s.submit(t, "A-003", 1000000)

	code, resp := s.reviewer(t, http.MethodPost, "/api/fcfs/skip/"+first, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"position":3`)

	code, resp = s.do(t, http.MethodPost, "/api/fcfs/prioritize/"+third, "admin-1", "admin",
		map[string]string{"reason": "gagal panen", "approved_by": "ketua"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, fmt.Sprintf(`{"job_id":%q,"position":1}`, third), string(resp.Data))

	code, resp = s.do(t, http.MethodPost, "/api/fcfs/prioritize/"+third, "admin-1", "admin", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `{"field":"reason"}`, string(resp.Data))

	code, _ = s.do(t, http.MethodPost, "/api/fcfs/emergency/"+first, "admin-1", "admin",
		map[string]string{"reason": "rumah sakit", "approved_by": "ketua"})
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, "/api/fcfs/emergency/"+first, "admin-1", "admin",
		map[string]string{"reason": "rumah sakit"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Loan not found or not in queue", resp.Message)
}

func TestLoanHandler_MemberAccess(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "A-001", 1000000)

	code, _ := s.do(t, http.MethodGet, "/api/fcfs/queue/"+id, "user-1", "anggota", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/fcfs/queue/"+id, "user-2", "anggota", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := s.do(t, http.MethodGet, "/api/fcfs/status/A-001", "user-1", "anggota", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"queue_length":1`)

	code, _ = s.do(t, http.MethodGet, "/api/fcfs/status/A-001", "user-2", "anggota", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPost, "/api/fcfs/submit", "user-1", "anggota", map[string]any{
		"amount": 100000, "tenor_months": 6, "purpose": "pupuk",
	})
	assert.Equal(t, http.StatusTooManyRequests, code, "one active loan per member")
}

func TestLoanHandler_Analytics(t *testing.T) {
	s := newTestServer(t)
	s.submit(t, "A-001", 1000000)
	s.submit(t, "A-002", 10000000)
	s.submit(t, "A-003", 100000)

	get := func(path string) (int, response) {
		return s.do(t, http.MethodGet, path, "pengawas-1", "pengawas", nil)
	}

	code, resp := get("/api/fcfs/analytics/convoy")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"queue_length":3`)

	code, resp = get("/api/fcfs/analytics/wait-series")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"estimated_wait":25`)

	code, resp = get("/api/fcfs/analytics/throughput?days=7")
	require.Equal(t, http.StatusOK, code)
	var series []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &series))
	assert.Len(t, series, 7)

	code, _ = get("/api/fcfs/analytics/throughput?days=400")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = get("/api/fcfs/analytics/verification")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"window_days":30`)

	code, resp = s.do(t, http.MethodPost, "/api/fcfs/analytics/simulate", "pengawas-1", "pengawas",
		map[string]any{"strategy": "sjf", "scale": 1.5})
	require.Equal(t, http.StatusOK, code)
	var sim struct {
		Strategy string  `json:"strategy"`
		Scale    float64 `json:"scale"`
		AvgWait  float64 `json:"avg_wait"`
		Baseline float64 `json:"baseline_avg_wait"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &sim))
	assert.Equal(t, "sjf", sim.Strategy)
	assert.Equal(t, 1.5, sim.Scale)

	code, resp = s.do(t, http.MethodPost, "/api/fcfs/analytics/simulate", "pengawas-1", "pengawas",
		map[string]any{"strategy": "random"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `{"field":"strategy"}`, string(resp.Data))
}
