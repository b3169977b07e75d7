package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/transport/http/middleware"
)

// Machine-readable error codes returned in the error envelope.
const (
	CodeMissingAuthHeader    = "MISSING_AUTH_HEADER"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	CodeUserNotAuthorized    = "USER_NOT_AUTHORIZED"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeMissingApplicationID = "MISSING_APPLICATION_ID"
	CodeNoScopesGranted      = "NO_SCOPES_GRANTED"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInternalError        = "INTERNAL_ERROR"
)

// SuccessResponse is the uniform success envelope.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the uniform error envelope with a machine-readable code.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	TraceID   string `json:"trace_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// NewSuccessResponse wraps a payload in the success envelope.
func NewSuccessResponse(data any, message string) SuccessResponse {
	return SuccessResponse{Success: true, Data: data, Message: message}
}

// NewErrorResponse creates an error envelope carrying the request trace id.
func NewErrorResponse(c *gin.Context, message, code string) ErrorResponse {
	return ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorCode: code,
		TraceID:   middleware.GetTraceID(c),
	}
}

// UserSummary is the public view of an internal user record.
type UserSummary struct {
	ID          string            `json:"user_id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"name,omitempty"`
	PhoneNumber *string           `json:"phone_number,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func newUserSummary(user *domain.User) UserSummary {
	return UserSummary{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhoneNumber: user.PhoneNumber,
		Attributes:  user.ProfileAttributes,
		CreatedAt:   user.CreatedAt,
	}
}

// InitSessionRequest is the payload for session initialization. The token set
// arrives from the IdP redirect callback; the identity token authenticates
// the user and is verified before anything else happens.
type InitSessionRequest struct {
	IDToken       string `json:"id_token" binding:"required"`
	AccessToken   string `json:"access_token" binding:"required"`
	RefreshToken  string `json:"refresh_token"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int    `json:"expires_in"`
	ApplicationID string `json:"application_id"`
}

// InitSessionResponse returns the opaque session handle.
type InitSessionResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

// SessionTokensResponse returns the wrapped token set for a session.
type SessionTokensResponse struct {
	SessionID     string    `json:"session_id"`
	IDToken       string    `json:"id_token"`
	AccessToken   string    `json:"access_token"`
	TokenType     string    `json:"token_type"`
	ExpiresIn     int       `json:"expires_in"`
	ExpiresAt     time.Time `json:"expires_at"`
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"application_id"`
}

// SessionListItem describes one session in a listing.
type SessionListItem struct {
	SessionID     string               `json:"session_id"`
	ApplicationID string               `json:"application_id"`
	CreatedAt     time.Time            `json:"created_at"`
	ExpiresAt     time.Time            `json:"expires_at"`
	Expired       bool                 `json:"expired"`
	Current       bool                 `json:"current"`
	Device        domain.DeviceSummary `json:"device"`
	Location      string               `json:"location"`
}

// RevokeOthersResponse reports the bulk revocation count.
type RevokeOthersResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// AuthorizeApplicationRequest is the explicit consent payload.
type AuthorizeApplicationRequest struct {
	ApplicationID string   `json:"application_id"`
	Scopes        []string `json:"scopes"`
	Decision      string   `json:"decision" binding:"required"`
}

// GrantView is the public view of an authorization grant.
type GrantView struct {
	ApplicationID string    `json:"application_id"`
	Scopes        []string  `json:"scopes"`
	GrantedAt     time.Time `json:"granted_at"`
}

// AuthorizedApplication is one entry of the user's authorized-apps listing.
type AuthorizedApplication struct {
	ApplicationID string    `json:"application_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Scopes        []string  `json:"scopes"`
	GrantedAt     time.Time `json:"granted_at"`
}

// CheckAppUserRequest asks whether the token's user authorizes an application.
type CheckAppUserRequest struct {
	ApplicationID string `json:"application_id"`
}

// CheckAppUserResponse reports the authorization state alongside the user.
type CheckAppUserResponse struct {
	Authorized bool        `json:"authorized"`
	User       UserSummary `json:"user"`
}

// ValidateChannelResponse reports whether a channel is registered and where
// it redirects.
type ValidateChannelResponse struct {
	Valid     bool   `json:"valid"`
	ReturnURL string `json:"return_url,omitempty"`
}

// UpdateProfileRequest carries provider attribute updates.
type UpdateProfileRequest struct {
	AccessToken string            `json:"access_token" binding:"required"`
	Attributes  map[string]string `json:"attributes" binding:"required"`
}

// DirectoryUserView is the admin-facing view of a provider directory user.
type DirectoryUserView struct {
	Username   string            `json:"username"`
	Status     string            `json:"status"`
	Enabled    bool              `json:"enabled"`
	CreatedAt  string            `json:"created_at,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ListDirectoryUsersResponse pages through the provider directory.
type ListDirectoryUsersResponse struct {
	Users           []DirectoryUserView `json:"users"`
	PaginationToken string              `json:"pagination_token,omitempty"`
}

// UpdateDirectoryUserRequest carries admin attribute updates.
type UpdateDirectoryUserRequest struct {
	Attributes map[string]string `json:"attributes" binding:"required"`
}
