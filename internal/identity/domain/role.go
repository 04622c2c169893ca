package domain

import "fmt"

// Role is the closed set of roles an account can hold. An account has
// exactly one role; assignment replaces the previous value.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleOfficer Role = "Officer"
	RoleUser    Role = "User"
)

// DefaultRole is assigned on registration.
const DefaultRole = RoleUser

// ParseRole validates a role name received from a client.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleOfficer, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}
