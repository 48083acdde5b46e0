// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//   - Compatibility with tornago's slog-based logging
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (passwords, tokens, keys)
//   - Passwords embedded in crawled URLs
//   - Session identifiers and authentication tokens
//
// Fetch failures are logged together with the response headers, which is
// where crawled sites hand out session cookies. Use HeaderAttr so each header
// is checked by name.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Warn("fetch failed",
//	    "url", "https://example.com/private",
//	    log.HeaderAttr("headers", resp.Header), // Set-Cookie is masked
//	)
//
//	slog.SetDefault(logger)
package log
