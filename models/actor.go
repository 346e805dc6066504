package models

type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller as established by the auth middleware.
type Actor struct {
	ID   int64  `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func (a Actor) IsStaff() bool {
	return a.HasRole(RoleStaff, RoleAdmin)
}
