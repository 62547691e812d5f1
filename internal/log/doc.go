// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of client identity key material
//   - Masking of user input sent in URL queries, which may be a password
//     answered to a sensitive-input prompt
//   - Configurable log levels with verbose mode support
//
// # Security Features
//
// The SecureHandler sanitizes:
//   - Attributes whose key names private keys, PEM blocks or user input
//   - PEM private key blocks detected by pattern matching
//   - The query part of any URL value
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("gemini request",
//	    "url", "gemini://example.org/login?hunter2", // logged as gemini://example.org/login?***REDACTED***
//	    "query", "hunter2",                          // masked
//	)
//	slog.SetDefault(logger)
package log
