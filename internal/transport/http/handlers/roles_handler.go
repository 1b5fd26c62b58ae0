package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/akulichev/memberdash/internal/domain/enums"
	"github.com/akulichev/memberdash/internal/pkg/validate"
	rolessvc "github.com/akulichev/memberdash/internal/services/roles"
	"github.com/akulichev/memberdash/internal/transport/http/dto"
	httperrors "github.com/akulichev/memberdash/internal/transport/http/errors"
)

type RolesHandler struct {
	resolver *rolessvc.Resolver
	sync     *rolessvc.SyncService
}

func NewRolesHandler(resolver *rolessvc.Resolver, sync *rolessvc.SyncService) *RolesHandler {
	return &RolesHandler{resolver: resolver, sync: sync}
}

// State reports the resolver snapshot for the live session.
func (h *RolesHandler) State(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		writeInternal(w, "ROLES_SERVICE_UNAVAILABLE", "roles service is unavailable")
		return
	}

	state := h.resolver.Snapshot()
	res := dto.RoleStateResponse{
		Loading: state.Loading(),
		Roles:   make([]string, 0, len(state.Roles)),
	}
	for _, role := range state.Roles {
		res.Roles = append(res.Roles, string(role))
	}
	if highest, ok := h.resolver.HighestRole(); ok {
		res.HighestRole = string(highest)
	}

	httperrors.Write(w, http.StatusOK, res)
}

func (h *RolesHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeInternal(w, "ROLES_SERVICE_UNAVAILABLE", "roles service is unavailable")
		return
	}

	var req dto.SyncRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	userIDs := make([]uuid.UUID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "user_ids must be valid UUIDs")
			return
		}
		userIDs = append(userIDs, id)
	}

	if err := h.sync.Sync(r.Context(), userIDs); err != nil {
		handleRolesError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *RolesHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(userID uuid.UUID, role enums.Role) error {
		return h.sync.Grant(r.Context(), userID, role)
	})
}

func (h *RolesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(userID uuid.UUID, role enums.Role) error {
		return h.sync.Revoke(r.Context(), userID, role)
	})
}

func (h *RolesHandler) mutate(w http.ResponseWriter, r *http.Request, op func(uuid.UUID, enums.Role) error) {
	if h.sync == nil {
		writeInternal(w, "ROLES_SERVICE_UNAVAILABLE", "roles service is unavailable")
		return
	}

	var req dto.RoleMutationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	if !validate.UUID(req.UserID) {
		writeBadRequest(w, "VALIDATION_ERROR", "user_id must be a valid UUID")
		return
	}
	userID := uuid.MustParse(req.UserID)
	role, ok := enums.ParseRole(req.Role)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown role")
		return
	}

	if err := op(userID, role); err != nil {
		handleRolesError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func handleRolesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rolessvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
