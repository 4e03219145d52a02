package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/clearcard/sqljob/internal/api/respond"
	"github.com/clearcard/sqljob/internal/broker"
	"github.com/clearcard/sqljob/internal/model"
)

// JobsHandler adapts broker.Service to the JSON-over-HTTP transport
// described in the RPC surface: this mux is the out-of-scope wrapper
// kept only so broker.Service is exercisable end to end.
type JobsHandler struct {
	svc *broker.Service
}

// NewJobsHandler wraps a broker.Service.
func NewJobsHandler(svc *broker.Service) *JobsHandler { return &JobsHandler{svc: svc} }

type submitRequest struct {
	SQL         string `json:"sql"`
	UserID      string `json:"user_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Title       string `json:"title,omitempty"`
	TableConfig string `json:"table_config,omitempty"`
	ChartConfig string `json:"chart_config,omitempty"`
	Options     struct {
		PageSize int    `json:"page_size,omitempty"`
		MaxRows  int    `json:"max_rows,omitempty"`
		Format   string `json:"format,omitempty"`
	} `json:"options,omitempty"`
}

// Submit handles POST /api/jobs.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.SQL == "" {
		respond.WriteBadRequest(w, "sql is required")
		return
	}

	jobID, err := h.svc.Submit(r.Context(), broker.SubmitRequest{
		SQL:         req.SQL,
		UserID:      req.UserID,
		RequestID:   req.RequestID,
		Title:       req.Title,
		TableConfig: req.TableConfig,
		ChartConfig: req.ChartConfig,
		Options: broker.SubmitOptions{
			PageSize: req.Options.PageSize,
			MaxRows:  req.Options.MaxRows,
			Format:   req.Options.Format,
		},
	})
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}

	if req.RequestID != "" {
		w.Header().Set("X-Request-Id", req.RequestID)
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"status": string(model.JobPending),
	})
}

// GetStatus handles GET /api/jobs/{job_id}.
func (h *JobsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	status, err := h.svc.GetStatus(r.Context(), jobID)
	if err != nil {
		if err == model.ErrNotFound {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, statusResponse(status))
}

// GetManifest handles GET /api/jobs/{job_id}/manifest.
func (h *JobsHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	ref, err := h.svc.GetResultManifest(r.Context(), jobID)
	if err != nil {
		if err == model.ErrNotFound {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	body := map[string]interface{}{"status": ref.Status}
	if ref.Status == "OK" {
		body["gcs_manifest_uri"] = ref.GCSManifestURI
	} else {
		body["error_message"] = ref.ErrorMessage
	}
	respond.WriteJSON(w, http.StatusOK, body)
}

// Cancel handles POST /api/jobs/{job_id}/cancel.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	status, err := h.svc.Cancel(r.Context(), jobID)
	if err != nil {
		if err == model.ErrNotFound {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, statusResponse(status))
}

func statusResponse(s broker.Status) map[string]interface{} {
	body := map[string]interface{}{
		"job_id":     s.JobID,
		"state":      string(s.State),
		"row_count":  s.RowCount,
		"bytes":      s.Bytes,
		"error_message": s.ErrorMsg,
	}
	if s.SubmittedAt != nil {
		body["submitted_at"] = s.SubmittedAt.Format(time.RFC3339)
	}
	if s.StartedAt != nil {
		body["started_at"] = s.StartedAt.Format(time.RFC3339)
	}
	if s.CompletedAt != nil {
		body["completed_at"] = s.CompletedAt.Format(time.RFC3339)
	}
	return body
}
