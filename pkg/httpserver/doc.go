// Package httpserver runs the public HTTP listener with graceful shutdown
// and provides liveness and readiness handlers.
package httpserver
