package auth

import "fmt"

// ResourceKind names a family of owned resources.
type ResourceKind string

// Resource kinds known to newsdesk.
const (
	// KindArticle is private to its owner.
	KindArticle ResourceKind = "article"

	// KindProfile can be shared with every authenticated user.
	KindProfile ResourceKind = "profile"
)

// shareableKinds lists kinds whose is_shared flag grants visibility.
// Kinds not listed are private-only.
var shareableKinds = map[ResourceKind]bool{
	KindProfile: true,
}

// Shareable reports whether resources of kind k may be shared.
func (k ResourceKind) Shareable() bool {
	return shareableKinds[k]
}

// Predicate is a declarative visibility condition. Collaborators evaluate
// it against their own storage, either in memory with Matches or in SQL.
type Predicate struct {
	// MatchAll disables filtering.
	MatchAll bool

	// OwnerID matches resources owned by this user.
	OwnerID string

	// IncludeShared additionally matches resources flagged as shared.
	IncludeShared bool
}

// Matches evaluates the predicate against a single resource.
func (p Predicate) Matches(ownerID string, shared bool) bool {
	if p.MatchAll {
		return true
	}
	if p.OwnerID != "" && ownerID == p.OwnerID {
		return true
	}
	return p.IncludeShared && shared
}

// SQL renders the predicate as a WHERE fragment over the given column
// names. Column names are trusted; values are always bound.
//
//	where, args := pred.SQL("owner_id", "is_shared")
//	rows, err := db.QueryContext(ctx, "SELECT ... FROM profiles WHERE "+where, args...)
func (p Predicate) SQL(ownerCol, sharedCol string) (string, []any) {
	switch {
	case p.MatchAll:
		return "1 = 1", nil
	case p.IncludeShared && sharedCol != "":
		return fmt.Sprintf("(%s = ? OR %s = 1)", ownerCol, sharedCol), []any{p.OwnerID}
	default:
		return fmt.Sprintf("%s = ?", ownerCol), []any{p.OwnerID}
	}
}

// BuildVisibilityPredicate returns what uc may see of resources of kind.
// Admins see everything; others see their own resources, plus shared ones
// when the kind supports sharing.
func BuildVisibilityPredicate(uc UserContext, kind ResourceKind) Predicate {
	if IsAdmin(uc) {
		return Predicate{MatchAll: true}
	}
	return Predicate{
		OwnerID:       uc.UserID,
		IncludeShared: kind.Shareable(),
	}
}
