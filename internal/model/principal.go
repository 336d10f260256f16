package model

// Principal is the already-verified caller handed over by the identity
// collaborator and mapped to a local user.
type Principal struct {
	UserID string
	Email  string
}

// Anonymous reports whether no verified user is attached.
func (p Principal) Anonymous() bool {
	return p.UserID == ""
}
