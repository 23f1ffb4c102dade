package domain

// AuthContext carries the pre-resolved caller identity into the engine.
// It is constructed at the authorization boundary and passed explicitly;
// the engine never reads ambient identity state.
type AuthContext struct {
	UserID     int64
	Privileged bool
}

// CanAccess reports whether the caller may operate on an account owned
// by ownerID.
func (a AuthContext) CanAccess(ownerID int64) bool {
	return a.Privileged || a.UserID == ownerID
}
