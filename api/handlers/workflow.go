package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/api"
	"github.com/BaSui01/crewflow/types"
	"github.com/BaSui01/crewflow/workflow"
)

// WorkflowHandler exposes the workflow lifecycle over HTTP.
type WorkflowHandler struct {
	orch   *workflow.Orchestrator
	logger *zap.Logger
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(orch *workflow.Orchestrator, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{orch: orch, logger: logger}
}

// Register mounts the workflow routes on the mux.
func (h *WorkflowHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/workflows", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/workflows", h.HandleList)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/workflows/{id}/advance", h.HandleAdvance)
	mux.HandleFunc("POST /api/v1/workflows/{id}/reset", h.HandleReset)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", h.HandleDelete)
}

// HandleCreate starts a new workflow from raw requirements.
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateWorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Requirements) == "" {
		WriteError(w, types.NewInvalidInputError("requirements is required"), h.logger)
		return
	}

	id, err := h.orch.CreateWorkflow(r.Context(), req.Requirements)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    api.CreateWorkflowResponse{ID: id},
	})
}

// HandleList returns all workflow records.
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.orch.ListWorkflows(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	result := make([]api.WorkflowInfo, 0, len(workflows))
	for _, wf := range workflows {
		result = append(result, api.ToWorkflowInfo(wf))
	}
	WriteSuccess(w, result)
}

// HandleGet returns one workflow record.
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wf, err := h.orch.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.ToWorkflowInfo(wf))
}

// HandleAdvance executes the workflow's current stage. At the approval
// stage this call blocks until the human decision arrives or the wait
// times out, so clients should use a generous request timeout.
func (h *WorkflowHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	wf, err := h.orch.Advance(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.ToWorkflowInfo(wf))
}

// HandleReset returns a failed or stuck workflow to the first stage.
func (h *WorkflowHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	wf, err := h.orch.ResetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.ToWorkflowInfo(wf))
}

// HandleDelete removes a workflow record.
func (h *WorkflowHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"id": r.PathValue("id"), "status": "deleted"})
}
