package roles

import "github.com/akulichev/memberdash/internal/domain/enums"

// tabPolicy is the static access table. Evaluated in precedence order: the
// strongest held role decides.
var tabPolicy = map[enums.Role]map[enums.Tab]struct{}{
	enums.RoleAdmin: tabSet(
		enums.TabDashboard,
		enums.TabUsers,
		enums.TabCollectors,
		enums.TabAudit,
		enums.TabSystem,
		enums.TabFinancials,
	),
	enums.RoleCollector: tabSet(
		enums.TabDashboard,
		enums.TabUsers,
	),
	enums.RoleMember: tabSet(
		enums.TabDashboard,
	),
}

// CanAccess is a pure function of (RoleSet, tab). An unresolved set denies
// everything: callers must branch on State.Loading first if they want a
// "still loading" signal instead of a denial.
func CanAccess(state State, tab enums.Tab) bool {
	if !state.Resolved {
		return false
	}
	for _, role := range enums.RolePrecedence {
		if !state.Has(role) {
			continue
		}
		_, ok := tabPolicy[role][tab]
		return ok
	}
	return false
}

func tabSet(tabs ...enums.Tab) map[enums.Tab]struct{} {
	set := make(map[enums.Tab]struct{}, len(tabs))
	for _, tab := range tabs {
		set[tab] = struct{}{}
	}
	return set
}
