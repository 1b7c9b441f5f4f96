package api

import (
	"time"

	"github.com/BaSui01/crewflow/types"
)

// CreateWorkflowRequest starts a new pipeline run.
type CreateWorkflowRequest struct {
	// Raw requirements text driving the pipeline
	Requirements string `json:"requirements" binding:"required"`
}

// CreateWorkflowResponse returns the id of the created workflow.
type CreateWorkflowResponse struct {
	ID string `json:"id"`
}

// WorkflowInfo is the API view of a workflow record.
type WorkflowInfo struct {
	ID            string                           `json:"id"`
	Requirements  string                           `json:"requirements"`
	Stage         types.Stage                      `json:"stage"`
	CorrelationID string                           `json:"correlation_id"`
	Artifacts     map[types.Stage]types.Artifact   `json:"artifacts,omitempty"`
	Failure       *types.Failure                   `json:"failure,omitempty"`
	Version       int64                            `json:"version"`
	CreatedAt     time.Time                        `json:"created_at"`
	UpdatedAt     time.Time                        `json:"updated_at"`
}

// ToWorkflowInfo converts a workflow record to its API view.
func ToWorkflowInfo(w *types.Workflow) WorkflowInfo {
	return WorkflowInfo{
		ID:            w.ID,
		Requirements:  w.Requirements,
		Stage:         w.Stage,
		CorrelationID: w.CorrelationID,
		Artifacts:     w.Artifacts,
		Failure:       w.Failure,
		Version:       w.Version,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

// RespondRequest carries a human decision on an approval request.
type RespondRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}
