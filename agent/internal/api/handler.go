package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obsidianstack/sentinel/agent/internal/alerts"
	"github.com/obsidianstack/sentinel/agent/internal/schedule"
	"github.com/obsidianstack/sentinel/agent/internal/store"
	"github.com/obsidianstack/sentinel/pkg/types"
)

// RuntimeSource exposes the checks currently scheduled.
type RuntimeSource interface {
	Runtime() schedule.Runtime
	Schedule() schedule.Schedule
}

// Options wires the handler to the rest of the agent.
type Options struct {
	Store    store.Store
	Alerters *alerts.Registry
	Runtime  RuntimeSource

	// Stream, if set, is mounted at /ws/incidents.
	Stream http.Handler

	// OnChange is called with every incident changed through the API.
	OnChange func(types.Incident)

	AuthMode   string
	AuthHeader string
	AuthKey    string
}

// Handler serves the admin API.
type Handler struct {
	opts   Options
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(opts Options) *Handler {
	h := &Handler{opts: opts}

	auth := RequireAPIKey(opts.AuthMode, opts.AuthHeader, opts.AuthKey)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/incidents", h.listIncidents)
			r.Route("/incidents/{checkID}", func(r chi.Router) {
				r.Get("/", h.getIncident)
				r.Put("/", h.acknowledge)
				r.Delete("/", h.deleteIncident)
			})
			r.Get("/alerters", h.alerters)
			r.Get("/checks", h.checks)
		})
	})
	if opts.Stream != nil {
		r.With(auth).Handle("/ws/incidents", opts.Stream)
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.opts.Runtime != nil {
		rt := h.opts.Runtime.Runtime()
		resp.Application = rt.Application
		resp.Checks = len(rt.Checks)
		if s := h.opts.Runtime.Schedule(); s != nil {
			resp.Schedule = s.String()
		}
	}
	list, err := h.opts.Store.List(r.Context())
	if err != nil {
		slog.Warn("api: list incidents", "err", err)
		resp.Status = "degraded"
	}
	resp.Incidents = len(list)
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	list, err := h.opts.Store.List(r.Context())
	if err != nil {
		storeErr(w, err)
		return
	}
	if list == nil {
		list = []types.Incident{}
	}
	jsonResp(w, http.StatusOK, list)
}

func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, ok, err := h.opts.Store.Get(r.Context(), chi.URLParam(r, "checkID"))
	if err != nil {
		storeErr(w, err)
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "incident not found")
		return
	}
	jsonResp(w, http.StatusOK, inc)
}

// acknowledge replaces the description of an open incident. The write only
// succeeds if req.Version is still the stored version.
func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Version == 0 {
		jsonErr(w, http.StatusBadRequest, "version is required")
		return
	}
	if req.Description == "" {
		jsonErr(w, http.StatusBadRequest, "description is required")
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "checkID")
	cur, ok, err := h.opts.Store.Get(ctx, id)
	if err != nil {
		storeErr(w, err)
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "incident not found")
		return
	}
	if cur.Version != req.Version {
		jsonErr(w, http.StatusConflict, "version conflict")
		return
	}

	next := cur
	next.Description = req.Description
	ok, err = h.opts.Store.Update(ctx, next, cur)
	if err != nil {
		storeErr(w, err)
		return
	}
	if !ok {
		jsonErr(w, http.StatusConflict, "version conflict")
		return
	}
	next.Version = cur.Version + 1

	slog.Info("api: incident acknowledged", "check", id, "version", next.Version)
	h.changed(next)
	jsonResp(w, http.StatusOK, next)
}

func (h *Handler) deleteIncident(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		jsonErr(w, http.StatusBadRequest, "version is required")
		return
	}
	version, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || version == 0 {
		jsonErr(w, http.StatusBadRequest, "invalid version "+strconv.Quote(raw))
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "checkID")
	cur, ok, err := h.opts.Store.Get(ctx, id)
	if err != nil {
		storeErr(w, err)
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "incident not found")
		return
	}
	expected := cur
	expected.Version = version
	ok, err = h.opts.Store.Delete(ctx, cur, expected)
	if err != nil {
		storeErr(w, err)
		return
	}
	if !ok {
		jsonErr(w, http.StatusConflict, "version conflict")
		return
	}

	slog.Info("api: incident deleted", "check", id, "version", version)

	now := time.Now()
	resolved := cur
	resolved.OldStatus = cur.NewStatus
	resolved.NewStatus = types.StatusOK
	resolved.Time = now
	resolved.ResolvedAt = &now
	resolved.Description = "deleted through the admin API"
	h.changed(resolved)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) alerters(w http.ResponseWriter, r *http.Request) {
	if h.opts.Alerters == nil {
		jsonResp(w, http.StatusOK, AlertersResponse{Available: []string{}, All: []alerts.Info{}})
		return
	}
	jsonResp(w, http.StatusOK, AlertersResponse{
		Available: h.opts.Alerters.Available(),
		All:       h.opts.Alerters.All(),
	})
}

func (h *Handler) checks(w http.ResponseWriter, r *http.Request) {
	out := []CheckResponse{}
	if h.opts.Runtime != nil {
		for _, c := range h.opts.Runtime.Runtime().Checks {
			out = append(out, toCheckResponse(c))
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) changed(inc types.Incident) {
	if h.opts.OnChange != nil {
		h.opts.OnChange(inc)
	}
}

func storeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrInvalidIncident) {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("api: store", "err", err)
	jsonErr(w, http.StatusServiceUnavailable, "incident store unavailable")
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
