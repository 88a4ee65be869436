// Package web exposes the maintenance classifier and the cycle trigger over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"restaurant_asset_tracker/internal/app"
	"restaurant_asset_tracker/internal/domain/maintenance"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// CycleTrigger runs a cycle on demand.
type CycleTrigger interface {
	RunNow(ctx context.Context) (app.CycleReport, error)
}

// DueLister lists devices that need maintenance.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]app.DeviceStatus, error)
}

type Server struct {
	cycles CycleTrigger
	due    DueLister
	logger *logrus.Entry
	now    func() time.Time
}

// NewRouter creates and configures the chi router with all middleware and routes.
func NewRouter(cycles CycleTrigger, due DueLister, corsOrigins []string, logger *logrus.Entry) http.Handler {
	s := &Server{
		cycles: cycles,
		due:    due,
		logger: logger.WithField("component", "http"),
		now:    time.Now,
	}
	return s.routes(corsOrigins)
}

func (s *Server) routes(corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/classify", s.handleClassify)
		r.Get("/devices/due", s.handleListDue)
		r.Post("/cycles", s.handleRunCycle)
	})
	return r
}

type classifyResponse struct {
	State         maintenance.State `json:"state"`
	DaysOffset    int               `json:"days_offset"`
	NextDueAt     time.Time         `json:"next_due_at"`
	NeverServiced bool              `json:"never_serviced"`
	Badge         string            `json:"badge"`
}

// handleClassify serves badge data: ?interval_days=N[&last=RFC3339][&now=RFC3339].
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	interval, err := strconv.Atoi(q.Get("interval_days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_interval", "interval_days must be an integer")
		return
	}
	if err := maintenance.CheckInterval(interval); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_interval", err.Error())
		return
	}

	var last *time.Time
	if v := q.Get("last"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_last", "last must be an RFC3339 timestamp")
			return
		}
		last = &t
	}

	now := s.now()
	if v := q.Get("now"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_now", "now must be an RFC3339 timestamp")
			return
		}
		now = t
	}

	c := maintenance.Classify(last, interval, now)
	writeJSON(w, http.StatusOK, classifyResponse{
		State:         c.State,
		DaysOffset:    c.DaysOffset,
		NextDueAt:     c.NextDueAt,
		NeverServiced: c.NeverServiced,
		Badge:         maintenance.Badge(c),
	})
}

func (s *Server) handleListDue(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.due.ListDue(r.Context(), s.now())
	if err != nil {
		s.logger.WithError(err).Error("Could not list due devices")
		writeError(w, http.StatusBadGateway, "device_source_unavailable", "could not load devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": statuses})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := s.cycles.RunNow(r.Context())
	switch {
	case errors.Is(err, app.ErrCycleInProgress):
		writeError(w, http.StatusConflict, "cycle_in_progress", err.Error())
	case errors.Is(err, app.ErrFetchFailure):
		s.logger.WithError(err).Warn("Triggered cycle could not fetch devices")
		writeJSON(w, http.StatusBadGateway, report)
	case err != nil:
		s.logger.WithError(err).Error("Triggered cycle failed")
		writeError(w, http.StatusInternalServerError, "cycle_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	resp := errorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
