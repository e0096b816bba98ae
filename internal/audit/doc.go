// Package audit persists the account and session history of newsdesk.
//
// Entries are append-only rows in the audit_logs table. They reference
// accounts by ID without a foreign key, so the trail survives account
// changes. Entries never carry passwords, hashes or session tokens.
package audit
