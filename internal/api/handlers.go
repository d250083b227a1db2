package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-conga/internal/bridge"
	"github.com/nerrad567/gray-logic-conga/internal/history"
)

// commandSourceAPI tags commands posted over HTTP when the caller's
// token carries no subject.
const commandSourceAPI = "api"

// commandRequest is the body of POST /devices/{serial}/commands.
type commandRequest struct {
	ID         string         `json:"id,omitempty"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleHealth returns the bridge health as published on MQTT, plus the
// API's own version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.bridge.Health()
	if health.Version == "" {
		health.Version = s.version
	}

	status := http.StatusOK
	if health.Status == bridge.HealthOffline {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleListDevices returns every managed vacuum with its last state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one vacuum.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	device, ok := s.bridge.Device(serial)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleStatusHistory returns recorded state snapshots, newest first.
func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	serial, limit, ok := s.historyQuery(w, r)
	if !ok {
		return
	}

	entries, err := s.history.StatusHistory(r.Context(), serial, limit)
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.StatusEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": serial,
		"entries":   entries,
		"count":     len(entries),
	})
}

// handleCommandHistory returns the command log, newest first.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	serial, limit, ok := s.historyQuery(w, r)
	if !ok {
		return
	}

	entries, err := s.history.CommandHistory(r.Context(), serial, limit)
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.CommandEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": serial,
		"entries":   entries,
		"count":     len(entries),
	})
}

// historyQuery validates the shared parts of the history routes and
// writes the error response itself when they fail.
func (s *Server) historyQuery(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return "", 0, false
	}

	serial := chi.URLParam(r, "serial")
	if _, ok := s.bridge.Device(serial); !ok {
		writeNotFound(w, "device not found")
		return "", 0, false
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return "", 0, false
		}
		limit = n
	}
	return serial, limit, true
}

func (s *Server) writeHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, history.ErrSerialRequired) {
		writeBadRequest(w, "serial is required")
		return
	}
	s.logger.Error("history query failed",
		"path", r.URL.Path,
		"request_id", r.Context().Value(ctxKeyRequestID),
		"error", err,
	)
	writeInternalError(w, "failed to read history")
}

// handleSendCommand runs a command through the bridge and returns its
// acknowledgement. The ack is also published on MQTT.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	source := commandSourceAPI
	if claims := claimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
		source = commandSourceAPI + ":" + claims.Subject
	}

	ack := s.bridge.Submit(bridge.CommandMessage{
		ID:         req.ID,
		Timestamp:  time.Now().UTC(),
		DeviceID:   chi.URLParam(r, "serial"),
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     source,
	})

	writeJSON(w, ackStatusCode(ack), ack)
}

// ackStatusCode maps a command acknowledgement onto an HTTP status.
func ackStatusCode(ack bridge.AckMessage) int {
	if ack.Status == bridge.AckAccepted {
		return http.StatusAccepted
	}
	if ack.Error == nil {
		return http.StatusInternalServerError
	}

	switch ack.Error.Code {
	case bridge.ErrCodeInvalidCommand, bridge.ErrCodeInvalidParameters:
		return http.StatusBadRequest
	case bridge.ErrCodeNotFound, bridge.ErrCodePlanNotFound:
		return http.StatusNotFound
	case bridge.ErrCodeAuthError:
		return http.StatusBadGateway
	case bridge.ErrCodeDeviceUnreachable:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
