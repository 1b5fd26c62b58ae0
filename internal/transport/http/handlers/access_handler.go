package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/akulichev/memberdash/internal/domain/enums"
	routingsvc "github.com/akulichev/memberdash/internal/services/routing"
	"github.com/akulichev/memberdash/internal/transport/http/dto"
	httperrors "github.com/akulichev/memberdash/internal/transport/http/errors"
)

type AccessHandler struct {
	guard *routingsvc.Guard
}

func NewAccessHandler(guard *routingsvc.Guard) *AccessHandler {
	return &AccessHandler{guard: guard}
}

// Decide evaluates the route guard for the tab named in the path.
func (h *AccessHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if h.guard == nil {
		writeInternal(w, "ROUTING_SERVICE_UNAVAILABLE", "routing service is unavailable")
		return
	}

	tab, ok := enums.ParseTab(chi.URLParam(r, "tab"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown tab")
		return
	}

	decision := h.guard.Decide(tab)
	httperrors.Write(w, http.StatusOK, dto.AccessDecisionResponse{
		Allow:          decision.Allow,
		Defer:          decision.Defer,
		Reason:         decision.Reason,
		RedirectTarget: decision.RedirectTarget,
	})
}
