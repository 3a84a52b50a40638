package authapi

import (
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/session"
)

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgName  string `json:"orgName"`
}

type userResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId,omitempty"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type authResponse struct {
	Success        bool            `json:"success"`
	User           userResponse    `json:"user"`
	Session        sessionResponse `json:"session"`
	OrganizationID string          `json:"organizationId,omitempty"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type logoutAllResponse struct {
	Success bool   `json:"success"`
	Revoked int    `json:"revoked"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func toUserResponse(id identity.Identity) userResponse {
	return userResponse{
		ID:    id.ID,
		Email: id.Email,
		Name:  id.Name,
	}
}

func toAuthResponse(s session.Session, orgID string) authResponse {
	return authResponse{
		Success: true,
		User:    toUserResponse(s.Identity),
		Session: sessionResponse{
			Token:     s.Token,
			ExpiresAt: formatTime(s.ExpiresAt),
		},
		OrganizationID: orgID,
	}
}
