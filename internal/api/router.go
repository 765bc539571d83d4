package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ellenhp/bambu-farm/internal/farm"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/sessions", s.handleListSessions)

		r.Route("/printers", func(r chi.Router) {
			r.Get("/", s.handleListPrinters)
			r.Get("/{id}", s.handleGetPrinter)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}

// PrinterView is the public shape of a configured printer. The access code
// is deliberately absent.
type PrinterView struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Model     string            `json:"model"`
	WireModel string            `json:"wire_model"`
	Host      string            `json:"host"`
	Session   *farm.SessionInfo `json:"session,omitempty"`
}

func toPrinterView(rec printer.Record) PrinterView {
	return PrinterView{
		ID:        rec.ID,
		Name:      rec.Name,
		Model:     string(rec.Model),
		WireModel: rec.Model.WireName(),
		Host:      rec.Host,
	}
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleListPrinters returns the configured roster.
func (s *Server) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	records, err := s.farm.Printers(r.Context())
	if err != nil {
		s.writeFarmError(w, "listing printers", err)
		return
	}

	views := make([]PrinterView, len(records))
	for i, rec := range records {
		views[i] = toPrinterView(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"printers": views,
		"count":    len(views),
	})
}

// handleGetPrinter returns one printer and its live session, if any.
func (s *Server) handleGetPrinter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	records, err := s.farm.Printers(r.Context())
	if err != nil {
		s.writeFarmError(w, "listing printers", err)
		return
	}

	var view *PrinterView
	for _, rec := range records {
		if rec.ID == id {
			v := toPrinterView(rec)
			view = &v
			break
		}
	}
	if view == nil {
		writeNotFound(w, "printer not found")
		return
	}

	sessions, err := s.farm.Sessions(r.Context())
	if err != nil {
		s.writeFarmError(w, "listing sessions", err)
		return
	}
	for i := range sessions {
		if sessions[i].DeviceID == id {
			view.Session = &sessions[i]
			break
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// handleListSessions returns the live printer sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.farm.Sessions(r.Context())
	if err != nil {
		s.writeFarmError(w, "listing sessions", err)
		return
	}
	if sessions == nil {
		sessions = []farm.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// writeFarmError maps a farm failure to a response.
func (s *Server) writeFarmError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, farm.ErrClosed) || errors.Is(err, farm.ErrRegistryUnavailable) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "gateway unavailable")
		return
	}
	s.logger.Error("api: "+action, "error", err)
	writeInternalError(w, action+" failed")
}
