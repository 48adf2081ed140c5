package rest

import (
	"chatto/errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// abort writes the taxonomy status of err. Server errors are logged with
// their cause and answered with a generic message.
func abort(c *gin.Context, log *slog.Logger, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	} else {
		log.Debug("Request rejected", "method", c.Request.Method, "path", c.FullPath(), "kind", errors.Kind(err), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: errors.PublicMessage(err)})
}

func pathID(c *gin.Context, name string, invalid error) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}

// queryInt reads an optional non-negative integer; absent means zero.
func queryInt(c *gin.Context, name string, invalid error) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalid
	}
	return n, nil
}
