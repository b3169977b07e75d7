package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a sentinel error to an HTTP status, message, and error code.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
	Code    string
}

// RespondWithMappedError resolves the provided error against known cases or
// falls back to a generic internal error response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message, cs.Code))
			return
		}
	}

	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal server error", CodeInternalError))
}
