package domain

// Principal is an authenticated actor (human or agent). It is issued by an
// external identity provider and consumed here as an opaque identifier plus
// role set; the gateway performs no authentication of its own.
type Principal struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
