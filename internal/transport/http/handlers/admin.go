package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/transport/http/middleware"
	"github.com/arklim/sso-broker/internal/usecase"
)

// AdminHandler exposes the provider directory administration endpoints.
type AdminHandler struct {
	admin *usecase.AdminService
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(admin *usecase.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// RegisterRoutes binds admin routes. The group must carry both the identity
// and the admin middleware.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/users", h.ListUsers)
	r.GET("/users/:username", h.GetUser)
	r.PATCH("/users/:username", h.UpdateUserAttributes)
	r.POST("/users/:username/reset-password", h.ForcePasswordReset)
	r.POST("/users/:username/deactivate", h.DeactivateUser)
	r.POST("/users/:username/activate", h.ActivateUser)
	r.DELETE("/users/:username", h.DeleteUser)
}

// ListUsers pages through the provider directory.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit64, _ := strconv.ParseInt(c.DefaultQuery("limit", "60"), 10, 32)
	paginationToken := c.Query("pagination_token")
	filter := c.Query("filter")

	users, next, err := h.admin.ListUsers(c.Request.Context(), int32(limit64), paginationToken, filter)
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	views := make([]DirectoryUserView, 0, len(users))
	for _, user := range users {
		views = append(views, newDirectoryUserView(user))
	}

	c.JSON(http.StatusOK, NewSuccessResponse(ListDirectoryUsersResponse{
		Users:           views,
		PaginationToken: next,
	}, ""))
}

// GetUser fetches one directory user.
func (h *AdminHandler) GetUser(c *gin.Context) {
	user, err := h.admin.GetUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: port.ErrDirectoryUserNotFound, Status: http.StatusNotFound, Message: "user not found", Code: CodeUserNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(newDirectoryUserView(*user), ""))
}

// UpdateUserAttributes sets directory attributes for a user.
func (h *AdminHandler) UpdateUserAttributes(c *gin.Context) {
	var req UpdateDirectoryUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "attributes are required", CodeInvalidRequest))
		return
	}

	if err := h.admin.UpdateUserAttributes(c.Request.Context(), c.Param("username"), req.Attributes); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: port.ErrDirectoryUserNotFound, Status: http.StatusNotFound, Message: "user not found", Code: CodeUserNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "attributes updated"))
}

// ForcePasswordReset forces a password reset on next login.
func (h *AdminHandler) ForcePasswordReset(c *gin.Context) {
	if err := h.admin.ForcePasswordReset(c.Request.Context(), c.Param("username")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: port.ErrDirectoryUserNotFound, Status: http.StatusNotFound, Message: "user not found", Code: CodeUserNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "password reset initiated"))
}

// DeactivateUser disables the directory account and ends the user's sessions.
func (h *AdminHandler) DeactivateUser(c *gin.Context) {
	adminID, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.admin.DeactivateUser(c.Request.Context(), c.Param("username"), adminID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: port.ErrDirectoryUserNotFound, Status: http.StatusNotFound, Message: "user not found", Code: CodeUserNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "user deactivated"))
}

// ActivateUser re-enables the directory account.
func (h *AdminHandler) ActivateUser(c *gin.Context) {
	if err := h.admin.ActivateUser(c.Request.Context(), c.Param("username")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: port.ErrDirectoryUserNotFound, Status: http.StatusNotFound, Message: "user not found", Code: CodeUserNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "user activated"))
}

// DeleteUser removes the directory account and the local footprint.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	adminID, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.admin.DeleteUser(c.Request.Context(), c.Param("username"), adminID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: port.ErrDirectoryUserNotFound, Status: http.StatusNotFound, Message: "user not found", Code: CodeUserNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "user deleted"))
}

func newDirectoryUserView(user port.DirectoryUser) DirectoryUserView {
	return DirectoryUserView{
		Username:   user.Username,
		Status:     user.Status,
		Enabled:    user.Enabled,
		CreatedAt:  user.CreatedAt,
		Attributes: user.Attributes,
	}
}
