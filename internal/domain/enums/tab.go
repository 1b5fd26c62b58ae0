package enums

// Tab identifies a navigable dashboard section.
type Tab string

const (
	TabDashboard  Tab = "dashboard"
	TabUsers      Tab = "users"
	TabCollectors Tab = "collectors"
	TabAudit      Tab = "audit"
	TabSystem     Tab = "system"
	TabFinancials Tab = "financials"
)

func ParseTab(raw string) (Tab, bool) {
	switch Tab(raw) {
	case TabDashboard, TabUsers, TabCollectors, TabAudit, TabSystem, TabFinancials:
		return Tab(raw), true
	default:
		return "", false
	}
}
