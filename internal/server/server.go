// Package server is the single HTTP entry point multiplexing sheet read and
// write actions for the relay UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"captcha_relay/internal/sheets"
	"captcha_relay/internal/state"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Gateway is the slice of the sheets client the façade needs.
type Gateway interface {
	ReadRange(ctx context.Context, spreadsheetID, sheetName string) ([][]interface{}, error)
	WriteCell(ctx context.Context, spreadsheetID, sheetName, cellRef string, value interface{}) error
}

// Config is the immutable sheet binding, built once at startup and passed in.
// Handlers never read the environment.
type Config struct {
	SpreadsheetID string
	SheetName     string
}

// Server dispatches façade actions onto a Gateway.
type Server struct {
	gw  Gateway
	cfg Config
}

func New(gw Gateway, cfg Config) *Server {
	return &Server{gw: gw, cfg: cfg}
}

// Router builds the two façade routes: the action endpoint and liveness.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/sheet", s.handleSheet).Methods(http.MethodPost)
	r.HandleFunc("/api/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

type sheetRequest struct {
	Action string      `json:"action"`
	Cell   string      `json:"cell"`
	Value  interface{} `json:"value"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Rejecting malformed request body")
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "Invalid JSON body"})
		return
	}

	switch req.Action {
	case "get-state":
		s.handleGetState(w, r)
	case "update-cell":
		s.handleUpdateCell(w, r, req)
	default:
		log.Debug().Str("action", req.Action).Msg("Unknown action requested")
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "Unknown action"})
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if !s.configured(w) {
		return
	}

	rows, err := s.gw.ReadRange(r.Context(), s.cfg.SpreadsheetID, s.cfg.SheetName)
	if err != nil {
		s.writeGatewayError(w, "get-state", err)
		return
	}

	st := state.Normalize(rows)
	log.Debug().
		Str("status", st.A2).
		Int("logs", len(st.Logs)).
		Msg("Serving normalized sheet state")
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: st})
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request, req sheetRequest) {
	if !s.configured(w) {
		return
	}
	if req.Cell == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "Missing cell"})
		return
	}

	value := req.Value
	if value == nil {
		value = ""
	}

	if err := s.gw.WriteCell(r.Context(), s.cfg.SpreadsheetID, s.cfg.SheetName, req.Cell, value); err != nil {
		var verr *sheets.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: verr.Error()})
			return
		}
		s.writeGatewayError(w, "update-cell", err)
		return
	}

	log.Info().Str("cell", req.Cell).Msg("Updated sheet cell")
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// configured degrades a missing sheet binding to a server error response
// instead of a panic deeper in the gateway.
func (s *Server) configured(w http.ResponseWriter) bool {
	if s.cfg.SpreadsheetID == "" || s.cfg.SheetName == "" {
		log.Error().Msg("Spreadsheet binding is not configured")
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "Spreadsheet is not configured"})
		return false
	}
	return true
}

// writeGatewayError converts a gateway failure into the response envelope.
// Auth failures get a fixed message so credential detail never reaches the
// client.
func (s *Server) writeGatewayError(w http.ResponseWriter, action string, err error) {
	log.Error().Err(err).Str("action", action).Msg("Gateway call failed")

	var aerr *sheets.AuthError
	if errors.As(err, &aerr) {
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "Spreadsheet authorization failed"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
