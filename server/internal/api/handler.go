package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qualitypulse/qualitypulse/pkg/types"
	"github.com/qualitypulse/qualitypulse/server/internal/catalog"
	"github.com/qualitypulse/qualitypulse/server/internal/receiver"
	"github.com/qualitypulse/qualitypulse/server/internal/store"
)

// maxBodyBytes bounds a posted measurement.
const maxBodyBytes = 32 << 20

// Deps are the collaborators the API serves from.
type Deps struct {
	Catalog  *catalog.Catalog
	Store    store.Store
	Receiver *receiver.Receiver

	// Auth guards the measurement write. Nil means no authentication.
	Auth func(http.Handler) http.Handler

	// Stream is mounted at /ws/stream when set.
	Stream http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps   Deps
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, router: chi.NewRouter()}
	auth := deps.Auth
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(middleware.Recoverer)

	h.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/metrics", h.metrics)
		r.With(auth).Post("/measurements", h.postMeasurement)
		r.Get("/metrics/{metric_uuid}/measurements", h.history)
		r.Get("/metrics/{metric_uuid}/measurements/latest", h.latest)
		r.With(auth).Put("/metrics/{metric_uuid}/sources/{source_uuid}/entities/{entity_key}", h.annotate)
	})
	if deps.Stream != nil {
		h.router.Method(http.MethodGet, "/ws/stream", deps.Stream)
	}

	h.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	h.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	latest, err := h.deps.Store.LatestPerMetric(r.Context())
	if err != nil {
		slog.Error("api: read latest measurements", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	stored, err := h.deps.Store.Count(r.Context())
	if err != nil {
		slog.Error("api: count measurements", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	metrics := h.deps.Catalog.Current().Metrics()
	resp := HealthResponse{
		Status:           "ok",
		MetricCount:      len(metrics),
		MeasurementCount: stored,
		StatusCounts:     map[types.Status]int{},
	}
	for _, m := range metrics {
		l, ok := latest[m.UUID]
		if !ok {
			continue
		}
		resp.MeasuredCount++
		if m.Outdated(l) {
			resp.OutdatedCount++
		}
		if s := l.Scales[m.Scale].Status; s != types.StatusNone {
			resp.StatusCounts[s]++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// metrics returns GET /api/v1/metrics: every metric of the catalog with its
// sources, flagged outdated when its latest measurement was collected with
// other source parameters.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	latest, err := h.deps.Store.LatestPerMetric(r.Context())
	if err != nil {
		slog.Error("api: read latest measurements", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	metrics := h.deps.Catalog.Current().Metrics()
	out := make(map[string]types.CatalogMetric, len(metrics))
	for _, m := range metrics {
		out[m.UUID] = m.CatalogMetric(m.Outdated(latest[m.UUID]))
	}
	jsonResp(w, http.StatusOK, out)
}

// postMeasurement handles POST /api/v1/measurements.
func (h *Handler) postMeasurement(w http.ResponseWriter, r *http.Request) {
	var post types.MeasurementPost
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&post); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid measurement: "+err.Error())
		return
	}
	if post.MetricUUID == "" {
		jsonErr(w, http.StatusBadRequest, "metric_uuid is required")
		return
	}

	outcome, m, err := h.deps.Receiver.Receive(r.Context(), &post)
	if err != nil {
		slog.Error("api: receive measurement", "metric", post.MetricUUID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not store measurement")
		return
	}
	resp := ReceiveResponse{Outcome: string(outcome)}
	if m != nil {
		resp.MeasurementID = m.ID
	}
	jsonResp(w, http.StatusOK, resp)
}

// history returns GET /api/v1/metrics/{metric_uuid}/measurements.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	ms, err := h.deps.Store.History(r.Context(), chi.URLParam(r, "metric_uuid"), limit)
	if err != nil {
		slog.Error("api: read history", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if ms == nil {
		ms = []*types.Measurement{}
	}
	jsonResp(w, http.StatusOK, ms)
}

// latest returns GET /api/v1/metrics/{metric_uuid}/measurements/latest.
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Store.Latest(r.Context(), chi.URLParam(r, "metric_uuid"))
	if err != nil {
		slog.Error("api: read latest measurement", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if m == nil {
		jsonErr(w, http.StatusNotFound, "no measurement")
		return
	}
	jsonResp(w, http.StatusOK, m)
}

// annotate handles PUT .../entities/{entity_key}.
func (h *Handler) annotate(w http.ResponseWriter, r *http.Request) {
	var data types.EntityUserData
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&data); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid entity user data: "+err.Error())
		return
	}
	if data.Status != "" && !data.Status.Valid() {
		jsonErr(w, http.StatusBadRequest, "unknown entity status "+strconv.Quote(string(data.Status)))
		return
	}

	key, err := entityKeyParam(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid entity key")
		return
	}

	m, err := h.deps.Receiver.Annotate(r.Context(),
		chi.URLParam(r, "metric_uuid"),
		chi.URLParam(r, "source_uuid"),
		key,
		data,
	)
	switch {
	case errors.Is(err, receiver.ErrUnknownMetric), errors.Is(err, receiver.ErrUnknownSource):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, receiver.ErrNoMeasurement):
		jsonErr(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("api: annotate entity", "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not store annotation")
	default:
		jsonResp(w, http.StatusOK, m)
	}
}

// --- helpers ----------------------------------------------------------------

// entityKeyParam returns the decoded entity_key segment. chi routes on
// RawPath when the request has one, and the segment is still escaped then.
func entityKeyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "entity_key")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
