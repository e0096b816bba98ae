// Package auth provides authentication and authorisation for newsdesk.
//
// It implements a 3-tier ordered role model (viewer < user < admin) with:
//   - bcrypt password hashing with a configurable cost (default 12)
//   - Opaque server-side sessions; only the SHA-256 of a token is stored
//   - Lazy session expiry with an optional background sweeper
//   - Pure permission checks and ownership visibility predicates
//
// Callers carry identity as an explicit UserContext value. It is rebuilt
// from the session and user rows on every validation, so a role change or
// deactivation takes effect on the next call.
package auth
