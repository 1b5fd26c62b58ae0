package enums

// Role is the application role attached to an authenticated user. A user may
// hold several roles at once; RolePrecedence picks the effective one.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCollector Role = "collector"
	RoleMember    Role = "member"
)

// RolePrecedence lists roles from strongest to weakest.
var RolePrecedence = []Role{RoleAdmin, RoleCollector, RoleMember}

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAdmin, RoleCollector, RoleMember:
		return Role(raw), true
	default:
		return "", false
	}
}
