package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/api"
	"github.com/BaSui01/crewflow/approval"
	"github.com/BaSui01/crewflow/types"
)

// ApprovalHandler exposes approval requests to the reviewer UI.
type ApprovalHandler struct {
	client *approval.Client
	logger *zap.Logger
}

// NewApprovalHandler creates an approval handler.
func NewApprovalHandler(client *approval.Client, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{client: client, logger: logger}
}

// Register mounts the approval routes on the mux.
func (h *ApprovalHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/approvals", h.HandleList)
	mux.HandleFunc("GET /api/v1/approvals/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/approvals/{id}/respond", h.HandleRespond)
}

// HandleList returns approval requests, filtered by the optional
// status query parameter. Without a filter it returns the pending
// queue, which is what the reviewer UI polls.
func (h *ApprovalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := approval.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = approval.StatusPending
	}
	switch status {
	case approval.StatusPending, approval.StatusApproved, approval.StatusRejected:
	default:
		WriteError(w, types.NewInvalidInputError(
			fmt.Sprintf("unknown approval status %q", status)), h.logger)
		return
	}

	requests, err := h.client.List(r.Context(), status)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if requests == nil {
		requests = []*approval.Request{}
	}
	WriteSuccess(w, requests)
}

// HandleGet returns one approval request.
func (h *ApprovalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.client.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, req)
}

// HandleRespond records the human decision and wakes the blocked
// pipeline.
func (h *ApprovalHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var req api.RespondRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id := r.PathValue("id")
	if err := h.client.Respond(r.Context(), id, req.Approved, req.Feedback); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	status := approval.StatusApproved
	if !req.Approved {
		status = approval.StatusRejected
	}
	WriteSuccess(w, map[string]any{"id": id, "status": status})
}
