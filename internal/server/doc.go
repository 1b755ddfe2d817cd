// Package server implements the HTTP surface of the request intake form:
// the form page, the submission endpoint, health probes and metrics. It
// wires the chi router, middleware and the intake processor, and provides
// lifecycle helpers used by tests and the production binary.
package server
