// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Components receive named child loggers (logging.NewDefault().Named("worker"))
// so every log line carries its origin.
package logging
