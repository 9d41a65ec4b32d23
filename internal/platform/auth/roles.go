package auth

import "fmt"

// Role is the account type that drives every authorization decision.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleRecipient Role = "recipient"
	RoleHospital  Role = "hospital"
	RoleAdmin     Role = "admin"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{RoleDonor, RoleRecipient, RoleHospital, RoleAdmin}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleDonor, RoleRecipient, RoleHospital, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

func (r Role) String() string { return string(r) }
