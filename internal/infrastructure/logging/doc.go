// Package logging provides structured logging for newsdesk.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// The default output is stderr because stdout belongs to the terminal UI.
//
// # Security
//
// Never log passwords, password hashes, or session tokens. Log user IDs
// and usernames only.
package logging
