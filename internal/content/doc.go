// Package content stores newsdesk's owned resources: private articles and
// shareable profiles.
//
// Every operation takes the caller's auth.UserContext. Reads are filtered
// by auth.BuildVisibilityPredicate, and writes check auth.CanEdit or
// auth.CanDelete against the stored owner. Items the caller cannot see are
// indistinguishable from items that do not exist.
package content
