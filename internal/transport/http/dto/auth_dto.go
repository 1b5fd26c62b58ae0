package dto

import "time"

type LoginRequest struct {
	MemberNumber string `json:"member_number"`
}

type SessionResponse struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type LoginResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message,omitempty"`
	Session *SessionResponse `json:"session,omitempty"`
}

type SessionStateResponse struct {
	Loading bool             `json:"loading"`
	Session *SessionResponse `json:"session,omitempty"`
}

type LogoutResponse struct {
	OK bool `json:"ok"`
}
