// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/modules/guard"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps conversation errors to HTTP statuses. Input
// rejections are the caller's fault; anything else is ours.
func writeServiceError(c *gin.Context, err error) {
	var rej *guard.RejectedError
	switch {
	case errors.As(err, &rej) && rej.Reason == guard.ReasonThrottled:
		c.Header("Retry-After", "60")
		writeJSON(c, http.StatusTooManyRequests, errorResponse{Error: "too many messages", Reason: string(rej.Reason)})
	case errors.As(err, &rej):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "input rejected", Reason: string(rej.Reason)})
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
