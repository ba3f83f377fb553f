// Package server exposes the worker runtime over HTTP and WebSocket:
// worker creation, message posting, termination, and a per-worker event
// stream, plus health and metrics endpoints.
package server
