package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicecard/internal/domain"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorPayload(c, err))
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errorPayload(c, err))
}

func errorPayload(c *gin.Context, err error) (int, envelope) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = fmt.Errorf("%w: request exceeds %d bytes", domain.ErrValidation, tooLarge.Limit)
	}

	kind, status := domain.ErrorKind(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		message = http.StatusText(status)
		if errors.Is(err, domain.ErrCollaborator) {
			message = "media processing failed"
		}
	}
	return status, envelope{Error: &apiError{Kind: kind, Message: message, Status: status}}
}
