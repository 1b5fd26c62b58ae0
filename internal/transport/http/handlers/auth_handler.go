package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akulichev/memberdash/internal/pkg/validate"
	authsvc "github.com/akulichev/memberdash/internal/services/auth"
	"github.com/akulichev/memberdash/internal/transport/http/dto"
	httperrors "github.com/akulichev/memberdash/internal/transport/http/errors"
)

type AuthHandler struct {
	orchestrator *authsvc.Orchestrator
	sessions     *authsvc.Manager
}

func NewAuthHandler(orchestrator *authsvc.Orchestrator, sessions *authsvc.Manager) *AuthHandler {
	return &AuthHandler{orchestrator: orchestrator, sessions: sessions}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validate.Required(req.MemberNumber) {
		writeBadRequest(w, "VALIDATION_ERROR", authsvc.UserMessage(authsvc.ErrInvalidInput))
		return
	}

	res, err := h.orchestrator.Login(r.Context(), req.MemberNumber)
	if err != nil {
		handleAuthError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.LoginResponse{
		Status:  string(res.Status),
		Session: sessionResponse(res.Session),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	h.sessions.Logout(r.Context())
	httperrors.Write(w, http.StatusOK, dto.LogoutResponse{OK: true})
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	session, loading := h.sessions.Current()
	httperrors.Write(w, http.StatusOK, dto.SessionStateResponse{
		Loading: loading,
		Session: sessionResponse(session),
	})
}

func sessionResponse(session *authsvc.Session) *dto.SessionResponse {
	if session == nil {
		return nil
	}
	return &dto.SessionResponse{
		UserID:      session.UserID.String(),
		AccessToken: session.Tokens.AccessToken,
		ExpiresAt:   session.ExpiresAt,
	}
}

func handleAuthError(w http.ResponseWriter, err error) {
	message := authsvc.UserMessage(err)
	switch {
	case errors.Is(err, authsvc.ErrInvalidInput):
		writeBadRequest(w, "VALIDATION_ERROR", message)
	case errors.Is(err, authsvc.ErrMemberNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: "MEMBER_NOT_FOUND", Message: message})
	case errors.Is(err, authsvc.ErrOperationInProgress):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{Code: "LOGIN_IN_PROGRESS", Message: message})
	case errors.Is(err, authsvc.ErrEmailNotConfirmed):
		httperrors.Write(w, http.StatusForbidden, httperrors.APIError{Code: "EMAIL_NOT_CONFIRMED", Message: message})
	case errors.Is(err, authsvc.ErrNetworkTransient),
		errors.Is(err, authsvc.ErrSignupFailed),
		errors.Is(err, authsvc.ErrNoSessionEstablished):
		httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{Code: "AUTH_BACKEND_ERROR", Message: message})
	default:
		writeInternal(w, "INTERNAL_ERROR", message)
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
