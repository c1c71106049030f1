package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/responder-tracker/internal/async"
	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
	"github.com/joseph-ayodele/responder-tracker/internal/repository"
	"github.com/joseph-ayodele/responder-tracker/internal/services/interpret"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// InterpretRequest is the body of POST /api/interpret. An omitted
// reference_time means now.
type InterpretRequest struct {
	Text          string             `json:"text"`
	ReferenceTime *time.Time         `json:"reference_time,omitempty"`
	PreviousETA   *time.Time         `json:"previous_eta,omitempty"`
	PeerETAs      []pipeline.PeerETA `json:"peer_etas,omitempty"`
}

type InterpretResponse struct {
	Result pipeline.Result `json:"result"`
	Debug  *DebugInfo      `json:"debug,omitempty"`
}

// DebugInfo exposes prompts, attempts and raw replies on request.
type DebugInfo struct {
	*pipeline.Trace
	ModelError      string `json:"model_error,omitempty"`
	CorrectionError string `json:"correction_error,omitempty"`
}

type MessageResponse struct {
	Record *repository.Record `json:"record,omitempty"`
	Queued bool               `json:"queued"`
}

type MissionResponse struct {
	MissionID       string               `json:"mission_id"`
	Count           int                  `json:"count"`
	Interpretations []*repository.Record `json:"interpretations"`
}

func (h *handlers) interpret(w http.ResponseWriter, r *http.Request) {
	var body InterpretRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := pipeline.Request{
		Text:        body.Text,
		PreviousETA: body.PreviousETA,
		PeerETAs:    body.PeerETAs,
	}
	if body.ReferenceTime != nil {
		req.ReferenceTime = *body.ReferenceTime
	} else {
		req.ReferenceTime = h.deps.Now()
	}

	res, trace, err := h.deps.Service.Interpret(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := InterpretResponse{Result: res}
	if wantDebug(r) && trace != nil {
		out.Debug = debugInfo(trace)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	var msg interpret.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		h.writeError(w, r, err)
		return
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = h.deps.Now()
	}

	if queryBool(r, "async") {
		if h.deps.Queue == nil {
			h.writeError(w, r, common.NewAppError("UNAVAILABLE", "async ingest is disabled", common.ErrUnavailable))
			return
		}
		if err := h.deps.Service.Validate(msg); err != nil {
			h.writeError(w, r, err)
			return
		}
		job := async.Job{Message: msg, TraceID: common.RequestIDFromContext(r.Context())}
		if err := h.deps.Queue.Enqueue(r.Context(), job); err != nil {
			if errors.Is(err, async.ErrShuttingDown) {
				err = common.NewAppError("UNAVAILABLE", "server is shutting down", common.ErrUnavailable)
			}
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, MessageResponse{Queued: true})
		return
	}

	rec, err := h.deps.Service.HandleMessage(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Record: rec})
}

func (h *handlers) listMission(w http.ResponseWriter, r *http.Request) {
	missionID := chi.URLParam(r, "missionID")
	recs, err := h.deps.Service.ListMission(r.Context(), missionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*repository.Record{}
	}
	writeJSON(w, http.StatusOK, MissionResponse{MissionID: missionID, Count: len(recs), Interpretations: recs})
}

func (h *handlers) exportMission(w http.ResponseWriter, r *http.Request) {
	if h.deps.Exporter == nil {
		h.writeError(w, r, common.NewAppError("UNAVAILABLE", "export is disabled", common.ErrUnavailable))
		return
	}
	missionID := chi.URLParam(r, "missionID")
	data, err := h.deps.Exporter.ExportMissionXLSX(r.Context(), missionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "mission-"+missionID+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "timestamp": h.deps.Now().UTC()}
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health.HealthCheck(ctx, 2*time.Second); err != nil {
			body["status"] = "error"
			body["database"] = "disconnected"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "connected"
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	msg := err.Error()
	logger := common.LoggerFromContext(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("http.request.failed", "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		logger.Warn("http.request.rejected", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: common.ErrorCode(err), Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.InvalidInputErrorf("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func wantDebug(r *http.Request) bool {
	return queryBool(r, "debug")
}

func debugInfo(t *pipeline.Trace) *DebugInfo {
	d := &DebugInfo{Trace: t}
	if t.Primary.Err != nil {
		d.ModelError = t.Primary.Err.Error()
	}
	if t.Correction != nil && t.Correction.Err != nil {
		d.CorrectionError = t.Correction.Err.Error()
	}
	return d
}
