package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/transport/http/middleware"
	"github.com/arklim/sso-broker/internal/usecase"
)

// AuthorizationHandler exposes consent and grant management endpoints.
type AuthorizationHandler struct {
	broker *usecase.BrokerService
	authz  *usecase.AuthorizationService
}

// NewAuthorizationHandler constructs an authorization handler.
func NewAuthorizationHandler(broker *usecase.BrokerService, authz *usecase.AuthorizationService) *AuthorizationHandler {
	return &AuthorizationHandler{broker: broker, authz: authz}
}

// RegisterRoutes binds authorization routes. The group must carry the
// identity middleware.
func (h *AuthorizationHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/authorize", h.AuthorizeApplication)
	r.POST("/check-user", h.CheckApplicationUser)
	r.GET("/applications", h.ListAuthorizedApplications)
	r.DELETE("/applications/:application_id", h.RevokeAuthorization)
}

// AuthorizeApplication records the user's explicit consent decision.
func (h *AuthorizationHandler) AuthorizeApplication(c *gin.Context) {
	var req AuthorizeApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "decision is required", CodeInvalidRequest))
		return
	}
	if req.ApplicationID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "application_id is required", CodeMissingApplicationID))
		return
	}

	decision := usecase.ConsentDecision(req.Decision)
	if decision != usecase.DecisionApprove && decision != usecase.DecisionDeny {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "decision must be 'approve' or 'deny'", CodeInvalidRequest))
		return
	}

	token := identityTokenFromHeader(c)

	grant, err := h.broker.AuthorizeApplication(c.Request.Context(), token, req.ApplicationID, req.Scopes, decision)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMissingApplicationID, Status: http.StatusBadRequest, Message: "application_id is required", Code: CodeMissingApplicationID},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid or expired token", Code: CodeInvalidToken},
			{Err: usecase.ErrApplicationNotFound, Status: http.StatusNotFound, Message: "application not found", Code: CodeApplicationNotFound},
			{Err: usecase.ErrNoScopesGranted, Status: http.StatusBadRequest, Message: "approval requires at least one scope", Code: CodeNoScopesGranted},
		})
		return
	}

	if grant == nil {
		c.JSON(http.StatusOK, NewSuccessResponse(nil, "authorization denied"))
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(GrantView{
		ApplicationID: grant.ApplicationID,
		Scopes:        grant.Scopes,
		GrantedAt:     grant.GrantedAt,
	}, "authorization granted"))
}

// CheckApplicationUser reports whether the token's user has authorized the
// application, creating the user record on first contact.
func (h *AuthorizationHandler) CheckApplicationUser(c *gin.Context) {
	var req CheckAppUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ApplicationID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "application_id is required", CodeMissingApplicationID))
		return
	}

	token := identityTokenFromHeader(c)

	user, authorized, err := h.broker.CheckApplicationUser(c.Request.Context(), token, req.ApplicationID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMissingApplicationID, Status: http.StatusBadRequest, Message: "application_id is required", Code: CodeMissingApplicationID},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid or expired token", Code: CodeInvalidToken},
			{Err: usecase.ErrApplicationNotFound, Status: http.StatusNotFound, Message: "application not found", Code: CodeApplicationNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(CheckAppUserResponse{
		Authorized: authorized,
		User:       newUserSummary(user),
	}, ""))
}

// ListAuthorizedApplications enumerates the applications the caller has
// active grants for.
func (h *AuthorizationHandler) ListAuthorizedApplications(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required", CodeInvalidToken))
		return
	}

	access, err := h.authz.ListForUser(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	apps := make([]AuthorizedApplication, 0, len(access))
	for _, a := range access {
		apps = append(apps, AuthorizedApplication{
			ApplicationID: a.ApplicationID,
			Name:          a.ApplicationName,
			Description:   a.Description,
			Scopes:        a.Scopes,
			GrantedAt:     a.GrantedAt,
		})
	}

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"applications": apps}, ""))
}

// RevokeAuthorization tombstones the caller's grant for an application.
func (h *AuthorizationHandler) RevokeAuthorization(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required", CodeInvalidToken))
		return
	}

	applicationID := c.Param("application_id")

	if err := h.authz.Revoke(c.Request.Context(), applicationID, userID, userID); err != nil {
		if errors.Is(err, usecase.ErrGrantNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "no active authorization for this application", CodeApplicationNotFound))
			return
		}
		RespondWithMappedError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "authorization revoked"))
}

// identityTokenFromHeader extracts the bearer token for flows that reverify
// it inside the usecase. The identity middleware already rejected requests
// without one.
func identityTokenFromHeader(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) {
		return header[len(prefix):]
	}
	return ""
}
