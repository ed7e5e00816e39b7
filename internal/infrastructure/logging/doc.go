// Package logging provides structured logging for the smart-home runtime.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across device nodes and client monitors.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Size-rotated file output for nodes without a log collector
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/smarthome.log"
//	    max_size: 10     # megabytes
//	    max_backups: 5
//	    max_age: 28      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device started", "device_id", cfg.Device.ID)
//	logger.Error("publish failed", "error", err)
//
// Never log broker passwords or database tokens.
package logging
