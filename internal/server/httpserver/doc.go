// Package httpserver provides the operations HTTP listener of tokenkeeper.
//
// It serves Prometheus metrics, liveness and readiness checks, and a JSON
// view of the cleaner. Token operations are not exposed over HTTP; they
// are function-level contracts of internal/core/service.
//
// StartTLS serves HTTPS and picks up a rotated key pair without a restart.
package httpserver
