// Package logging provides structured logging for the controller daemon.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, with service and version attached to
// every entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("transport").Info("listening", "address", addr)
//
// Components below the infrastructure layer accept a small Logger interface
// (Debug/Info/Warn/Error) so *Logger can be passed straight in.
package logging
