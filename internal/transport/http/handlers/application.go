package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/usecase"
)

// ApplicationHandler exposes application metadata endpoints.
type ApplicationHandler struct {
	broker *usecase.BrokerService
}

// NewApplicationHandler constructs an application handler.
func NewApplicationHandler(broker *usecase.BrokerService) *ApplicationHandler {
	return &ApplicationHandler{broker: broker}
}

// RegisterRoutes binds application routes to the provided router group.
func (h *ApplicationHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/:application_id/channels/:channel_id", h.ValidateChannel)
}

// ValidateChannel checks that a channel is registered under the application
// and returns its configured return URL.
func (h *ApplicationHandler) ValidateChannel(c *gin.Context) {
	applicationID := c.Param("application_id")
	channelID := c.Param("channel_id")

	valid, returnURL, err := h.broker.ValidateAppChannel(c.Request.Context(), applicationID, channelID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMissingApplicationID, Status: http.StatusBadRequest, Message: "application_id is required", Code: CodeMissingApplicationID},
			{Err: usecase.ErrApplicationNotFound, Status: http.StatusNotFound, Message: "application not found", Code: CodeApplicationNotFound},
		})
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(ValidateChannelResponse{
		Valid:     valid,
		ReturnURL: returnURL,
	}, ""))
}
