package auth

// CheckPermission reports whether the caller's role is at or above required.
// An unauthenticated (zero) context never passes.
func CheckPermission(uc UserContext, required Role) bool {
	return uc.Role.Valid() && uc.Role >= required
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(uc UserContext) bool {
	return uc.Role == RoleAdmin
}

// CanEdit reports whether the caller may modify a resource owned by ownerID.
func CanEdit(uc UserContext, ownerID string) bool {
	return IsAdmin(uc) || isOwner(uc, ownerID)
}

// CanDelete reports whether the caller may delete a resource owned by ownerID.
// Currently the same rule as CanEdit.
func CanDelete(uc UserContext, ownerID string) bool {
	return IsAdmin(uc) || isOwner(uc, ownerID)
}

// Require converts a failed CheckPermission into ErrPermissionDenied.
func Require(uc UserContext, required Role) error {
	if !CheckPermission(uc, required) {
		return ErrPermissionDenied
	}
	return nil
}

func isOwner(uc UserContext, ownerID string) bool {
	return uc.UserID != "" && uc.UserID == ownerID
}
