package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/transport/http/middleware"
	"github.com/arklim/sso-broker/internal/usecase"
)

// SessionHandler exposes session lifecycle endpoints.
type SessionHandler struct {
	broker *usecase.BrokerService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(broker *usecase.BrokerService) *SessionHandler {
	return &SessionHandler{broker: broker}
}

// RegisterRoutes binds session routes to the provided router group. The
// authenticated routes require the identity middleware on the group.
func (h *SessionHandler) RegisterRoutes(public, authed *gin.RouterGroup) {
	if public != nil {
		public.POST("/init", h.InitSession)
		public.GET("/:session_id", h.GetSessionTokens)
	}
	if authed != nil {
		authed.GET("", h.ListSessions)
		authed.DELETE("/others", h.RevokeOtherSessions)
		authed.DELETE("/:session_id", h.RevokeSession)
	}
}

// InitSession exchanges an IdP token set for an opaque broker session.
func (h *SessionHandler) InitSession(c *gin.Context) {
	var req InitSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "id_token and access_token are required", CodeInvalidRequest))
		return
	}
	if req.ApplicationID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "application_id is required", CodeMissingApplicationID))
		return
	}

	tokens := domain.TokenSet{
		IDToken:      req.IDToken,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		ExpiresIn:    req.ExpiresIn,
	}
	userAgent := userAgentPtr(c)

	result, err := h.broker.InitializeSession(c.Request.Context(), req.IDToken, req.ApplicationID, tokens, userAgent)
	if err != nil {
		h.respondInitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewSuccessResponse(InitSessionResponse{
		SessionID: result.Session.ID,
		ExpiresAt: result.Session.ExpiresAt,
		User:      newUserSummary(result.User),
	}, "session initialized"))
}

func (h *SessionHandler) respondInitError(c *gin.Context, err error) {
	var authzErr *usecase.AuthorizationRequiredError
	if errors.As(err, &authzErr) {
		resp := NewErrorResponse(c, "user has not authorized this application", CodeUserNotAuthorized)
		if len(authzErr.MissingScopes) > 0 {
			resp.Data = gin.H{"missing_scopes": authzErr.MissingScopes}
		}
		c.JSON(http.StatusForbidden, resp)
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrMissingApplicationID, Status: http.StatusBadRequest, Message: "application_id is required", Code: CodeMissingApplicationID},
		{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid or expired token", Code: CodeInvalidToken},
		{Err: usecase.ErrApplicationNotFound, Status: http.StatusNotFound, Message: "application not found", Code: CodeApplicationNotFound},
	})
}

// GetSessionTokens returns the wrapped token set, refreshing it when the
// access token is near expiry.
func (h *SessionHandler) GetSessionTokens(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, err := h.broker.GetSessionTokens(c.Request.Context(), sessionID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found", Code: CodeSessionNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(SessionTokensResponse{
		SessionID:     session.ID,
		IDToken:       session.Tokens.IDToken,
		AccessToken:   session.Tokens.AccessToken,
		TokenType:     session.Tokens.TokenType,
		ExpiresIn:     session.Tokens.ExpiresIn,
		ExpiresAt:     session.ExpiresAt,
		UserID:        session.UserID,
		ApplicationID: session.ApplicationID,
	}, ""))
}

// ListSessions enumerates the caller's sessions with device classification.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required", CodeInvalidToken))
		return
	}

	includeExpired, _ := strconv.ParseBool(c.DefaultQuery("include_expired", "false"))
	currentSessionID := c.GetHeader("X-Session-ID")

	views, err := h.broker.ListUserSessions(c.Request.Context(), userID, includeExpired)
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	items := make([]SessionListItem, 0, len(views))
	for _, view := range views {
		items = append(items, SessionListItem{
			SessionID:     view.Session.ID,
			ApplicationID: view.Session.ApplicationID,
			CreatedAt:     view.Session.CreatedAt,
			ExpiresAt:     view.Session.ExpiresAt,
			Expired:       view.Expired,
			Current:       currentSessionID != "" && view.Session.ID == currentSessionID,
			Device:        view.Device,
			// No IPs are retained, so no geo lookup is possible.
			Location: "Unknown",
		})
	}

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"sessions": items}, ""))
}

// RevokeSession deletes one of the caller's own sessions.
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required", CodeInvalidToken))
		return
	}

	sessionID := c.Param("session_id")

	if err := h.broker.RevokeSession(c.Request.Context(), sessionID, userID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found", Code: CodeSessionNotFound},
			{Err: usecase.ErrSessionForbidden, Status: http.StatusForbidden, Message: "session does not belong to the caller", Code: CodeUserNotAuthorized},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "session revoked"))
}

// RevokeOtherSessions bulk-deletes the caller's other sessions, sparing the
// one named in the X-Session-ID header.
func (h *SessionHandler) RevokeOtherSessions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required", CodeInvalidToken))
		return
	}

	currentSessionID := c.GetHeader("X-Session-ID")

	count, err := h.broker.RevokeAllOtherSessions(c.Request.Context(), userID, currentSessionID)
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(RevokeOthersResponse{RevokedCount: count}, "sessions revoked"))
}

func userAgentPtr(c *gin.Context) *string {
	if ua := c.Request.UserAgent(); ua != "" {
		return &ua
	}
	return nil
}
