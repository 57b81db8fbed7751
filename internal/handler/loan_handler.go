package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"loan-queue/internal/config"
	"loan-queue/internal/models"
	"loan-queue/internal/service"
)

// LoanHandler handles HTTP requests for the loan queue
type LoanHandler struct {
	queue     *service.QueueService
	analytics *service.AnalyticsService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(queue *service.QueueService, analytics *service.AnalyticsService) *LoanHandler {
	return &LoanHandler{
		queue:     queue,
		analytics: analytics,
	}
}

// Register mounts the queue API on mux. Every route requires an actor;
// role gates come from auth.
func (h *LoanHandler) Register(mux *http.ServeMux, auth config.AuthConfig) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return Authenticate(fn)
	}
	only := func(roles []string, fn http.HandlerFunc) http.Handler {
		return Authenticate(RequireRoles(roles, fn))
	}

	mux.Handle("GET /api/fcfs/queue", authed(h.GetQueue))
	mux.Handle("GET /api/fcfs/queue/{id}", authed(h.GetJob))
	mux.Handle("POST /api/fcfs/submit", authed(h.Submit))
	mux.Handle("GET /api/fcfs/status/{memberId}", authed(h.GetMemberStatus))
	mux.Handle("GET /api/fcfs/processed", authed(h.ListProcessed))

	mux.Handle("GET /api/fcfs/next", only(auth.ReviewerRoles, h.PeekNext))
	mux.Handle("POST /api/fcfs/process-next", only(auth.ReviewerRoles, h.ProcessNext))
	mux.Handle("POST /api/fcfs/approve/{id}", only(auth.ReviewerRoles, h.Approve))
	mux.Handle("POST /api/fcfs/reject/{id}", only(auth.ReviewerRoles, h.Reject))
	mux.Handle("POST /api/fcfs/skip/{id}", only(auth.ReviewerRoles, h.Skip))

	mux.Handle("POST /api/fcfs/prioritize/{id}", only(auth.OverrideRoles, h.Prioritize))
	mux.Handle("POST /api/fcfs/emergency/{id}", only(auth.OverrideRoles, h.Emergency))

	mux.Handle("GET /api/fcfs/analytics/convoy", only(auth.AnalyticsRoles, h.Convoy))
	mux.Handle("GET /api/fcfs/analytics/wait-series", only(auth.AnalyticsRoles, h.WaitSeries))
	mux.Handle("GET /api/fcfs/analytics/throughput", only(auth.AnalyticsRoles, h.Throughput))
	mux.Handle("POST /api/fcfs/analytics/simulate", only(auth.AnalyticsRoles, h.Simulate))
	mux.Handle("GET /api/fcfs/analytics/verification", only(auth.AnalyticsRoles, h.Verification))
}

type decisionRequest struct {
	Notes string `json:"notes"`
}

type overrideRequest struct {
	Reason     string `json:"reason"`
	ApprovedBy string `json:"approved_by"`
}

type simulateRequest struct {
	Strategy string  `json:"strategy"`
	Scale    float64 `json:"scale"`
}

// GetQueue handles GET /api/fcfs/queue
func (h *LoanHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	view, err := h.queue.GetQueue(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", view)
}

// GetJob handles GET /api/fcfs/queue/{id}
func (h *LoanHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	detail, err := h.queue.GetJob(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", detail)
}

// Submit handles POST /api/fcfs/submit
func (h *LoanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	actor, _ := ActorFrom(r.Context())
	res, err := h.queue.Submit(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "Loan submitted", res)
}

// PeekNext handles GET /api/fcfs/next
func (h *LoanHandler) PeekNext(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.PeekNext(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if job == nil {
		writeJSON(w, http.StatusOK, "No loans in queue", nil)
		return
	}
	writeJSON(w, http.StatusOK, "", job)
}

// ProcessNext handles POST /api/fcfs/process-next
func (h *LoanHandler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	job, err := h.queue.AdvanceNext(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Loan taken for review", job)
}

// Approve handles POST /api/fcfs/approve/{id}
func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Reject handles POST /api/fcfs/reject/{id}
func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *LoanHandler) decide(w http.ResponseWriter, r *http.Request, approved bool) {
	var req decisionRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	job, err := h.queue.Decide(r.Context(), actor, r.PathValue("id"), approved, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	message := "Loan rejected"
	if approved {
		message = "Loan approved"
	}
	writeJSON(w, http.StatusOK, message, job)
}

// Skip handles POST /api/fcfs/skip/{id}
func (h *LoanHandler) Skip(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	job, err := h.queue.Skip(r.Context(), actor, r.PathValue("id"), req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Loan moved to the back of the queue", job)
}

// Prioritize handles POST /api/fcfs/prioritize/{id}
func (h *LoanHandler) Prioritize(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	id := r.PathValue("id")
	pos, err := h.queue.Prioritize(r.Context(), actor, id, req.Reason, req.ApprovedBy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Loan prioritized", map[string]any{"job_id": id, "position": pos})
}

// Emergency handles POST /api/fcfs/emergency/{id}
func (h *LoanHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	actor, _ := ActorFrom(r.Context())
	job, err := h.queue.EmergencyBypass(r.Context(), actor, r.PathValue("id"), req.Reason, req.ApprovedBy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Emergency bypass applied", job)
}

// GetMemberStatus handles GET /api/fcfs/status/{memberId}
func (h *LoanHandler) GetMemberStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	status, err := h.queue.GetMemberStatus(r.Context(), actor, r.PathValue("memberId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", status)
}

// ListProcessed handles GET /api/fcfs/processed?limit=
func (h *LoanHandler) ListProcessed(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	jobs, err := h.queue.ListProcessed(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", jobs)
}

// Convoy handles GET /api/fcfs/analytics/convoy
func (h *LoanHandler) Convoy(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.Convoy(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", report)
}

// WaitSeries handles GET /api/fcfs/analytics/wait-series
func (h *LoanHandler) WaitSeries(w http.ResponseWriter, r *http.Request) {
	points, err := h.analytics.WaitSeries(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", points)
}

// Throughput handles GET /api/fcfs/analytics/throughput?days=
func (h *LoanHandler) Throughput(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}
	series, err := h.analytics.Throughput(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", series)
}

// Simulate handles POST /api/fcfs/analytics/simulate
func (h *LoanHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	res, err := h.analytics.Simulate(r.Context(), req.Strategy, req.Scale)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", res)
}

// Verification handles GET /api/fcfs/analytics/verification?days=
func (h *LoanHandler) Verification(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}
	stats, err := h.analytics.Verification(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "", stats)
}

// decodeOptional decodes a JSON body when one is present. An empty body
// leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "Invalid request body", nil)
	return false
}

// queryInt reads an optional integer query parameter; absent means zero
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": must be an integer", map[string]string{"field": name})
		return 0, false
	}
	return v, true
}
