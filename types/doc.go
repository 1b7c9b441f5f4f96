// Package types defines the shared data model of the crewflow pipeline:
// workflow records, the stage state machine, and the unified error taxonomy.
//
// The package carries no dependencies so it can be imported from every
// layer without cycles.
package types
