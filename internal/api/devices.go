package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/nhat092005/smart-home-sub001/internal/client"
	"github.com/nhat092005/smart-home-sub001/internal/history"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

const (
	// maxPathParamLen bounds device and command ids taken from the URL.
	maxPathParamLen = 128

	// maxCommandTimeout keeps a command wait inside the HTTP write timeout.
	maxCommandTimeout = 30 * time.Second
)

// DeviceCommand is the request body for POST /devices/{id}/commands.
type DeviceCommand struct {
	Command   protocol.Name   `json:"command"`
	Params    json.RawMessage `json:"params,omitempty"`
	TimeoutMS int             `json:"timeout_ms,omitempty"`
}

// CommandResult is the response body of the command endpoint.
type CommandResult struct {
	CmdID     string `json:"cmd_id,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// deviceSummary is one row of the device list.
type deviceSummary struct {
	ID     string          `json:"id"`
	Online bool            `json:"online"`
	State  *protocol.State `json:"state,omitempty"`
}

// handleListDevices returns every configured device with its liveness and
// last cached state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := lo.Map(s.devices.DeviceViews(), func(v client.DeviceView, _ int) deviceSummary {
		return deviceSummary{ID: v.ID, Online: v.Online, State: v.State}
	})
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns the cached state, data and info of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	view, err := s.devices.Device(id)
	if err != nil {
		if errors.Is(err, client.ErrUnknownDevice) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSendCommand publishes a command and waits for the device's answer.
//
// Status codes:
//   - 200: device answered success
//   - 400: unknown command, invalid params or timeout_ms
//   - 404: device not configured
//   - 502: device answered error
//   - 503: broker not connected or publish failed
//   - 504: no response before the timeout
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	if !s.devices.IsKnown(id) {
		writeNotFound(w, "device not found")
		return
	}

	var body DeviceCommand
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	cmd, err := protocol.DecodeCommand(body.Command, body.Params)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	timeout, err := commandTimeout(body.TimeoutMS)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	start := time.Now()
	resp, err := s.devices.Do(r.Context(), id, body.Command, cmd, timeout)
	result := CommandResult{
		CmdID:     resp.CmdID,
		Status:    client.Reason(err),
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	writeJSON(w, commandStatusCode(err), result)
}

// handleGetDeviceHistory returns stored states for a device, newest first.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	if !s.devices.IsKnown(id) {
		writeNotFound(w, "device not found")
		return
	}
	if s.history == nil {
		writeUnavailable(w, "history is not enabled")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetStateHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("state history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// handleGetCommand returns the stored record of a command.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	cmdID, ok := pathParam(w, r, "cmd_id")
	if !ok {
		return
	}
	if s.history == nil {
		writeUnavailable(w, "history is not enabled")
		return
	}

	rec, err := s.history.GetCommand(r.Context(), cmdID)
	if err != nil {
		if errors.Is(err, history.ErrCommandNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		s.logger.Error("command query failed", "cmd_id", cmdID, "error", err)
		writeInternalError(w, "failed to query command")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// commandStatusCode maps a command outcome to an HTTP status.
func commandStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, client.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, client.ErrCommandRejected):
		return http.StatusBadGateway
	case errors.Is(err, client.ErrCommandTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

// commandTimeout converts timeout_ms. Zero selects the monitor default.
func commandTimeout(ms int) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("timeout_ms must not be negative")
	}
	timeout := time.Duration(ms) * time.Millisecond
	if timeout > maxCommandTimeout {
		return 0, fmt.Errorf("timeout_ms must not exceed %d", maxCommandTimeout.Milliseconds())
	}
	return timeout, nil
}

// parseHistoryLimit parses the limit query parameter. Empty selects the
// repository default; larger values are clamped by the repository.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return limit, nil
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := chi.URLParam(r, name)
	if v == "" || len(v) > maxPathParamLen {
		writeBadRequest(w, "invalid "+name)
		return "", false
	}
	return v, true
}
