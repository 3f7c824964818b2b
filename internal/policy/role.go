package policy

import "fmt"

// Role is one of the three account roles. The zero value is not valid;
// parse input with ParseRole instead of casting.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

var roleRanks = map[Role]int{
	RoleAdmin:    3,
	RoleManager:  2,
	RoleEmployee: 1,
}

// ParseRole rejects unknown role strings so a bad row or token never
// reaches a comparison.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRanks[r]; !ok {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

func (r Role) Rank() int { return roleRanks[r] }

// AtLeast reports whether r ranks at or above min in the role hierarchy.
func (r Role) AtLeast(min Role) bool {
	return roleRanks[r] >= roleRanks[min]
}

// Actor is the authenticated caller a decision is made for.
type Actor struct {
	ID   string
	Role Role
}
