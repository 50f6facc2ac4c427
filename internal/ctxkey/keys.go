// Package ctxkey holds shared context key types. It must stay free of
// imports from other internal packages so any layer can use it.
package ctxkey

// LoggerKey keys the per-request logger the HTTP logging middleware
// stores in the request context.
type LoggerKey struct{}
