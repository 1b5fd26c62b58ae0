package dto

type OKResponse struct {
	OK bool `json:"ok"`
}

type RoleStateResponse struct {
	Loading     bool     `json:"loading"`
	Roles       []string `json:"roles"`
	HighestRole string   `json:"highest_role,omitempty"`
}

type SyncRolesRequest struct {
	UserIDs []string `json:"user_ids"`
}

type RoleMutationRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type AccessDecisionResponse struct {
	Allow          bool   `json:"allow"`
	Defer          bool   `json:"defer"`
	Reason         string `json:"reason,omitempty"`
	RedirectTarget string `json:"redirect_target,omitempty"`
}
