package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/alerts"
	"github.com/portwatch/portwatch/server/internal/coverage"
	"github.com/portwatch/portwatch/server/internal/metrics"
	"github.com/portwatch/portwatch/server/internal/monitor"
	"github.com/portwatch/portwatch/server/internal/status"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// maxCoverageDays caps the range of a multi-day coverage request.
const maxCoverageDays = 31

// AlertSource exposes the alert engine's state. *alerts.Engine implements it.
type AlertSource interface {
	Active() []alerts.Alert
	FiringCount() int
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	svc     *monitor.Service
	alerts  AlertSource
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// New creates a Handler over svc and registers all routes. alertSrc and m
// may be nil.
func New(svc *monitor.Service, alertSrc AlertSource, m *metrics.Metrics) http.Handler {
	h := &Handler{svc: svc, alerts: alertSrc, metrics: m, mux: http.NewServeMux()}

	h.handle("/api/v1/health", "health", h.health)
	h.handle("/api/v1/reservations", "reservations", h.reservations)
	h.handle("/api/v1/reservations/check", "reservations_check", h.checkReservation)
	h.handle("/api/v1/reservations/", "reservation", h.reservation) // subtree, extracts {id}
	h.handle("/api/v1/portfolios", "portfolios", h.listPortfolios)
	h.handle("/api/v1/portfolios/", "portfolio", h.portfolio) // subtree, {id}/status and {id}/checked
	h.handle("/api/v1/coverage", "coverage", h.coverage)
	h.handle("/api/v1/issues", "issues", h.issues)
	h.handle("/api/v1/alerts", "alerts", h.listAlerts)
	h.handle("/api/v1/snapshot", "snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handle registers fn and records its response codes under route.
func (h *Handler) handle(pattern, route string, fn http.HandlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		fn(rec, r)
		h.metrics.ObserveHTTP(route, rec.code)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// --- reservations -----------------------------------------------------------

// reservations serves POST (reserve) and GET (list active) on /api/v1/reservations.
func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.svc.Leases().ListActive(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, list)

	case http.MethodPost:
		var req ReserveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.IssueHour == nil {
			writeErr(w, types.Invalid("issue_hour", "is required"))
			return
		}
		holder := req.MonitoredBy
		if types.Blank(holder) {
			holder = monitor.OperatorFrom(r.Context())
		}
		res, err := h.svc.Leases().Acquire(r.Context(), req.PortfolioID, *req.IssueHour, holder)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusCreated, res)

	default:
		methodNotAllowed(w)
	}
}

// checkReservation returns GET /api/v1/reservations/check.
func (h *Handler) checkReservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	pid := strings.TrimSpace(q.Get("portfolio_id"))
	hour, err := strconv.Atoi(q.Get("issue_hour"))
	if err != nil {
		writeErr(w, types.Invalid("issue_hour", "must be an integer"))
		return
	}

	res, ok, err := h.svc.Leases().Holder(r.Context(), pid, hour)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := CheckResponse{PortfolioID: pid, IssueHour: hour, Active: ok}
	if ok {
		resp.Reservation = &res
	}
	jsonResp(w, http.StatusOK, resp)
}

// reservation serves GET and DELETE on /api/v1/reservations/{id}.
func (h *Handler) reservation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reservations/")
	if id == "" || strings.Contains(id, "/") {
		if id == "" {
			h.reservations(w, r)
			return
		}
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		res, err := h.svc.Leases().Get(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, res)

	case http.MethodDelete:
		if err := h.svc.Leases().Release(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

// --- portfolios -------------------------------------------------------------

// listPortfolios returns GET /api/v1/portfolios: the whole board.
func (h *Handler) listPortfolios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	results, err := h.svc.Board(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, toStatusResponses(results))
}

// portfolio routes /api/v1/portfolios/{id}/status and /api/v1/portfolios/{id}/checked.
func (h *Handler) portfolio(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/portfolios/"), "/")
	if rest == "" {
		h.listPortfolios(w, r)
		return
	}
	id, action, _ := strings.Cut(rest, "/")

	switch action {
	case "status", "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		res, err := h.svc.StatusFor(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, toStatusResponse(res))

	case "checked":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req CheckedRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.AllSitesChecked == nil {
			writeErr(w, types.Invalid("all_sites_checked", "is required"))
			return
		}
		p, err := h.svc.SetAllSitesChecked(r.Context(), id, *req.AllSitesChecked, req.Reason)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, p)

	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// --- coverage & issues ------------------------------------------------------

// coverage returns GET /api/v1/coverage?day=YYYY-MM-DD, or a list of days
// for ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) coverage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	if q.Has("from") || q.Has("to") {
		from, err := h.svc.ParseDay(q.Get("from"))
		if err != nil {
			writeErr(w, types.Invalid("from", "must be YYYY-MM-DD"))
			return
		}
		to, err := h.svc.ParseDay(q.Get("to"))
		if err != nil {
			writeErr(w, types.Invalid("to", "must be YYYY-MM-DD"))
			return
		}
		if to.Sub(from) > maxCoverageDays*24*time.Hour {
			writeErr(w, types.Invalid("to", "range is limited to %d days", maxCoverageDays))
			return
		}
		days, err := h.svc.CoverageRange(r.Context(), from, to)
		if err != nil {
			writeErr(w, err)
			return
		}
		if days == nil {
			days = []coverage.Snapshot{}
		}
		jsonResp(w, http.StatusOK, CoverageResponse{Days: days})
		return
	}

	day, err := h.svc.ParseDay(q.Get("day"))
	if err != nil {
		writeErr(w, err)
		return
	}
	snap, err := h.svc.Coverage(r.Context(), day)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

// issues serves GET (list) and POST (record) on /api/v1/issues.
func (h *Handler) issues(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		f := types.IssueFilter{PortfolioID: strings.TrimSpace(q.Get("portfolio_id"))}
		var err error
		if f.From, err = parseTime(q.Get("from")); err != nil {
			writeErr(w, types.Invalid("from", "must be RFC 3339"))
			return
		}
		if f.To, err = parseTime(q.Get("to")); err != nil {
			writeErr(w, types.Invalid("to", "must be RFC 3339"))
			return
		}
		list, err := h.svc.ListIssues(r.Context(), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, list)

	case http.MethodPost:
		var req IssueRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.IssueHour == nil {
			writeErr(w, types.Invalid("issue_hour", "is required"))
			return
		}
		iss, err := h.svc.RecordIssue(r.Context(), types.Issue{
			PortfolioID:    req.PortfolioID,
			IssueHour:      *req.IssueHour,
			IssuePresent:   req.IssuePresent,
			Details:        req.Details,
			CaseNumber:     req.CaseNumber,
			MonitoredBy:    req.MonitoredBy,
			IssuesMissedBy: req.IssuesMissedBy,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusCreated, iss)

	default:
		methodNotAllowed(w)
	}
}

// --- overview ---------------------------------------------------------------

// health returns GET /api/v1/health: band counts and reservation total.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		// The store is down; report it rather than fail the probe outright.
		slog.Warn("api: health degraded", "err", err)
		jsonResp(w, http.StatusServiceUnavailable, HealthResponse{
			State:         "unavailable",
			LeaseDuration: h.svc.Leases().LeaseDuration().String(),
			GeneratedAt:   time.Now().UTC(),
		})
		return
	}

	resp := HealthResponse{
		State:              "ok",
		PortfolioCount:     len(snap.Portfolios),
		Summary:            snap.Summary,
		ActiveReservations: len(snap.Reservations),
		LeaseDuration:      h.svc.Leases().LeaseDuration().String(),
		CurrentHour:        snap.CurrentHour,
		GeneratedAt:        snap.GeneratedAt,
	}
	if h.alerts != nil {
		resp.AlertCount = h.alerts.FiringCount()
	}
	jsonResp(w, http.StatusOK, resp)
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot, the same payload the WebSocket
// stream pushes.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

// --- helpers ----------------------------------------------------------------

func toStatusResponse(r status.Result) StatusResponse {
	hints := status.Hints(r)
	if hints == nil {
		hints = []status.Hint{}
	}
	return StatusResponse{Result: r, Hints: hints}
}

func toStatusResponses(rs []status.Result) []StatusResponse {
	out := make([]StatusResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toStatusResponse(r))
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// writeErr maps engine errors to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	var (
		ce *types.ConflictError
		ve *types.ValidationError
	)
	switch {
	case errors.As(err, &ce):
		exp := ce.ExpiresAt
		resp := ErrorResponse{Error: ce.Error(), HeldBy: ce.HeldBy}
		if !exp.IsZero() {
			resp.ExpiresAt = &exp
		}
		jsonResp(w, http.StatusConflict, resp)
	case errors.Is(err, types.ErrConflict):
		jsonErr(w, http.StatusConflict, err.Error())
	case errors.As(err, &ve):
		jsonResp(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, types.ErrValidation):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrUnavailable):
		slog.Error("api: backend unavailable", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "service unavailable, try again")
	default:
		slog.Error("api: unexpected error", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, ErrorResponse{Error: msg})
}
