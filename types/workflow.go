package types

import (
	"fmt"
	"time"
)

// Stage identifies one phase of the requirement-to-project pipeline.
type Stage string

const (
	StageAnalysis      Stage = "ANALYSIS"
	StageApproval      Stage = "APPROVAL"
	StageCoding        Stage = "CODING"
	StageTesting       Stage = "TESTING"
	StageDocumentation Stage = "DOCUMENTATION"
	StageComplete      Stage = "COMPLETE"
	StageFailed        Stage = "FAILED"
)

// stageOrder is the forward execution sequence. FAILED sits outside the
// sequence and is reachable from any non-terminal stage.
var stageOrder = []Stage{
	StageAnalysis,
	StageApproval,
	StageCoding,
	StageTesting,
	StageDocumentation,
	StageComplete,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	if s == StageFailed {
		return true
	}
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether the workflow can no longer advance from s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Next returns the stage that follows s in the pipeline sequence.
// ok is false for terminal and unknown stages.
func (s Stage) Next() (next Stage, ok bool) {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// CanTransition reports whether a workflow may move from one stage to
// another. Transitions are monotonic along the pipeline order; FAILED is
// reachable from any non-terminal stage.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// Artifact is a stage's output payload. Its contents are owned by the
// agent that produced it and are opaque to the orchestrator.
type Artifact map[string]any

// Failure records which stage a workflow failed in and why.
type Failure struct {
	Stage   Stage     `json:"stage"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (f *Failure) String() string {
	return fmt.Sprintf("stage %s failed: [%s] %s", f.Stage, f.Code, f.Message)
}

// Workflow tracks one requirement through the pipeline stages.
//
// Version implements compare-and-swap semantics for stores: every
// successful update increments it, and a store rejects an update whose
// version does not match the persisted one.
type Workflow struct {
	ID            string             `json:"id"`
	Requirements  string             `json:"requirements"`
	Stage         Stage              `json:"stage"`
	CorrelationID string             `json:"correlation_id"`
	Artifacts     map[Stage]Artifact `json:"artifacts"`
	Failure       *Failure           `json:"failure,omitempty"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate persisted state behind the orchestrator's back.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.Artifacts = make(map[Stage]Artifact, len(w.Artifacts))
	for stage, art := range w.Artifacts {
		inner := make(Artifact, len(art))
		for k, v := range art {
			inner[k] = v
		}
		cp.Artifacts[stage] = inner
	}
	if w.Failure != nil {
		f := *w.Failure
		cp.Failure = &f
	}
	return &cp
}
