// Package http provides http transport for recall queries
package http

import (
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"recallwatch/internal/core/ident"
	"recallwatch/internal/modkit/httpkit"
	perr "recallwatch/internal/platform/errors"
	ptime "recallwatch/internal/platform/time"
	"recallwatch/internal/services/recalls/domain"
	svc "recallwatch/internal/services/recalls/service"
)

// Register mounts recall query endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}
	httpkit.Get(r, "/by-identifier", h.byIdentifier)
	httpkit.Get(r, "/search", h.search)
	httpkit.Get(r, "/", h.list)
}

type handlers struct{ svc svc.Service }

// @Summary Exact lookup by product identifier
// @Tags Recalls
// @Produce json
// @Param kind query string true "identifier kind" Enums(upc, model, lot, serial)
// @Param value query string true "identifier value"
// @Success 200 {array} domain.RecallRecord "ok"
// @Router /recalls/by-identifier [get]
func (h *handlers) byIdentifier(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	kind, ok := ident.ParseKind(q.Get("kind"))
	if !ok {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "kind must be one of upc, model, lot, serial")
	}
	value := strings.TrimSpace(q.Get("value"))
	if value == "" {
		return nil, perr.New(perr.ErrorCodeInvalidArgument, "value is required")
	}

	recs, err := h.svc.ByIdentifier(r.Context(), kind, value)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		// an unknown identifier is an explicit miss, not a server error
		return nil, perr.Newf(perr.ErrorCodeNotFound, "no recall for %s %s", kind, value)
	}
	return recs, nil
}

// @Summary Fuzzy text search over name, brand and description
// @Tags Recalls
// @Produce json
// @Param q query string true "search terms, tolerant of misspellings"
// @Param limit query int false "max results, default 20"
// @Success 200 {array} domain.TextHit "ok"
// @Router /recalls/search [get]
func (h *handlers) search(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := h.svc.ByText(r.Context(), q.Get("q"), limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []domain.TextHit{}
	}
	return hits, nil
}

// @Summary List recalls with filters and keyset pagination
// @Tags Recalls
// @Produce json
// @Param agency query string false "agency code"
// @Param country query string false "country code"
// @Param category query string false "hazard category"
// @Param dateFrom query string false "inclusive lower bound YYYY-MM-DD"
// @Param dateTo query string false "inclusive upper bound YYYY-MM-DD"
// @Param cursor query string false "opaque page cursor"
// @Param limit query int false "page size, default 50"
// @Success 200 {object} domain.RecordPage "ok"
// @Router /recalls [get]
func (h *handlers) list(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	f := domain.CompositeFilter{
		Agency:   strings.TrimSpace(q.Get("agency")),
		Country:  strings.ToUpper(strings.TrimSpace(q.Get("country"))),
		Category: strings.TrimSpace(q.Get("category")),
		Cursor:   q.Get("cursor"),
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	var err error
	if f.DateFrom, err = dateParam(q.Get("dateFrom")); err != nil {
		return nil, err
	}
	if f.DateTo, err = dateParam(q.Get("dateTo")); err != nil {
		return nil, err
	}

	return h.svc.ByCompositeFilter(r.Context(), f)
}

func dateParam(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "bad date %q, want YYYY-MM-DD", v)
	}
	return ptime.Ptr(t), nil
}
