package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/draft"
	"github.com/mecarvi/siteadmin/internal/editor"
	"github.com/mecarvi/siteadmin/internal/schema"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondFailure 把领域错误映射为状态码，消息与区块提示一致。
func respondFailure(c *gin.Context, err error) {
	respondError(c, statusForError(err), api.Message(err))
}

func statusForError(err error) int {
	var (
		validation schema.ValidationError
		appErr     *api.ApplicationError
		transport  *api.TransportError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, api.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, draft.ErrSubmitInFlight):
		return http.StatusConflict
	case errors.Is(err, editor.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, draft.ErrNotAttachment),
		errors.Is(err, draft.ErrIsAttachment),
		errors.Is(err, schema.ErrUnknownField),
		errors.Is(err, editor.ErrSingletonKey),
		errors.Is(err, editor.ErrNoSortField):
		return http.StatusBadRequest
	case errors.As(err, &appErr):
		if appErr.Status >= 400 && appErr.Status < 500 {
			return appErr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}
