// Package main is the entry point for the workerd runtime daemon.
//
// workerd hosts isolated JavaScript worker threads and exposes them
// over HTTP and WebSocket: create a worker from a script, post messages
// to it, stream its messages and errors back, terminate it.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./workerd -port 8090 -scripts /srv/workers
//
//	# With a manifest mapping worker aliases to script paths
//	./workerd -manifest workers.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
