package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/transport/http/middleware"
	"github.com/arklim/sso-broker/internal/usecase"
)

// ProfileHandler exposes the self-service profile endpoint.
type ProfileHandler struct {
	profiles *usecase.ProfileService
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(profiles *usecase.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// RegisterRoutes binds profile routes. The group must carry the identity
// middleware.
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.PUT("", h.UpdateProfile)
}

// UpdateProfile pushes attribute changes to the identity provider and
// mirrors them locally.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required", CodeInvalidToken))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "access_token and attributes are required", CodeInvalidRequest))
		return
	}

	if err := h.profiles.Update(c.Request.Context(), userID, req.AccessToken, req.Attributes); err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found", CodeUserNotFound))
			return
		}
		RespondWithMappedError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "profile updated"))
}
