// Package api defines the HTTP surface of the crewflow pipeline: the
// workflow lifecycle endpoints, the approval decision endpoints, and
// the health probes. Handlers live in the handlers subpackage; this
// package carries the shared request and response shapes.
package api
