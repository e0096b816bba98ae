// Package api implements the HTTP REST API and WebSocket server for newsdesk.
//
// This package provides:
//   - Session login and logout backed by the auth service
//   - Admin account management and forced logout
//   - Article and profile endpoints filtered by ownership and sharing
//   - A read-only view of the audit trail for admins
//   - A WebSocket stream of account and session events for admins
//
// # Security
//
// Protected routes take an opaque session token in the Authorization header
// ("Bearer <token>"). Every request re-validates the token, so a deactivated
// account or a forced logout takes effect on the next call. WebSocket
// connections use single-use tickets so the session token never appears in
// a URL.
//
// Error bodies never carry internal detail. Credential failures share one
// message, as do missing and expired sessions.
//
// The API is optional. The terminal login flow works without it.
package api
