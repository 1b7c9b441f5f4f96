// Package handlers implements the HTTP handlers for the crewflow API:
// workflow lifecycle, approval decisions, and health probes. All
// handlers write the shared Response envelope and map pipeline error
// codes to HTTP status codes in one place.
package handlers
