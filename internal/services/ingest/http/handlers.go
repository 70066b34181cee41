// Package http provides the admin transport for ingestion runs
package http

import (
	stdhttp "net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"recallwatch/internal/modkit/httpkit"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/services/ingest/domain"
)

// Register mounts run endpoints on the given router
func Register(r httpkit.Router, s domain.TriggerPort) {
	h := &handlers{svc: s}
	httpkit.PostJSON(r, "/", h.trigger)
	httpkit.Get(r, "/", h.list)
	httpkit.Get(r, "/{id}", h.get)
	httpkit.Post(r, "/{id}/cancel", h.cancel)
}

type handlers struct{ svc domain.TriggerPort }

type triggerRequest struct {
	Mode     string   `json:"mode"`
	Agencies []string `json:"agencies"`
}

type triggerResponse struct {
	RunID string `json:"run_id"`
}

// @Summary Trigger an ingestion run
// @Tags Runs
// @Accept json
// @Produce json
// @Param payload body triggerRequest false "mode defaults to incremental; agencies defaults to all"
// @Success 200 {object} triggerResponse "run accepted"
// @Router /runs [post]
func (h *handlers) trigger(r *stdhttp.Request, body triggerRequest) (any, error) {
	mode, ok := domain.ParseMode(body.Mode)
	if !ok {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "mode must be full or incremental")
	}
	id, err := h.svc.TriggerIngestion(r.Context(), mode, body.Agencies)
	if err != nil {
		return nil, err
	}
	return triggerResponse{RunID: id}, nil
}

// @Summary Get one run with its per-agency outcomes
// @Tags Runs
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} domain.Run "ok"
// @Router /runs/{id} [get]
func (h *handlers) get(r *stdhttp.Request) (any, error) {
	return h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
}

// @Summary List runs, newest first
// @Tags Runs
// @Produce json
// @Param status query string false "filter by run status"
// @Param cursor query string false "keyset cursor from the previous page"
// @Param limit query int false "page size, default 20"
// @Success 200 {object} domain.RunPage "ok"
// @Router /runs [get]
func (h *handlers) list(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := domain.ListFilter{
		Status: domain.RunStatus(q.Get("status")),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "unknown status %q", f.Status)
	}
	return h.svc.ListRuns(r.Context(), f)
}

// @Summary Cancel an in-flight run
// @Tags Runs
// @Param id path string true "run id"
// @Success 200 "cancelled"
// @Router /runs/{id}/cancel [post]
func (h *handlers) cancel(r *stdhttp.Request) (any, error) {
	id := chi.URLParam(r, "id")
	if err := h.svc.CancelRun(r.Context(), id); err != nil {
		return nil, err
	}
	return map[string]string{"run_id": id, "status": "cancelling"}, nil
}

func validStatus(s domain.RunStatus) bool {
	switch s {
	case domain.RunQueued, domain.RunRunning, domain.RunSucceeded, domain.RunPartial, domain.RunFailed:
		return true
	}
	return false
}
