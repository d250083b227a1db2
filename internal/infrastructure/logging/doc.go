// Package logging provides structured logging for the Gray Logic Conga bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("bridge").Info("polling", "devices", 2)
//
// # Security
//
// Never log account passwords, identity tokens or shadow credentials.
// conga.Identity and config.AccountConfig redact themselves when printed.
package logging
