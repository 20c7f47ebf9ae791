package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"classline/internal/transport/httpdto"
	classline_errors "classline/pkg/errors"
)

// respondError translates the service error taxonomy into an HTTP
// status inside the uniform envelope. Unexpected errors never leak
// their text to the client.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, classline_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error()))
	case errors.Is(err, classline_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse(err.Error()))
	case errors.Is(err, classline_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse(err.Error()))
	case errors.Is(err, classline_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error()))
	case errors.Is(err, classline_errors.ErrConflict), errors.Is(err, classline_errors.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error()))
	case errors.Is(err, classline_errors.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(err.Error()))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error"))
	}
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
