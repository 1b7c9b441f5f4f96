// Package workflow implements the pipeline orchestrator and its
// recovery machinery: the stage state machine driver, per-operation
// circuit breakers, transient-error retry, performance measurement, and
// the workflow store.
//
// A workflow moves ANALYSIS → APPROVAL → CODING → TESTING →
// DOCUMENTATION → COMPLETE. Each Advance call executes exactly one
// stage; a failure the recovery policy cannot absorb routes the
// workflow to FAILED with the failing stage and reason recorded.
package workflow
