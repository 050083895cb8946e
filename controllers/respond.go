package controllers

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/loans"

	"github.com/gin-gonic/gin"
)

// StatusForKind maps a lifecycle failure kind to its HTTP status.
func StatusForKind(k loans.Kind) int {
	switch k {
	case loans.KindNotFound:
		return http.StatusNotFound
	case loans.KindUnauthorized:
		return http.StatusForbidden
	case loans.KindInvalidTransition, loans.KindConflict, loans.KindConcurrencyConflict:
		return http.StatusConflict
	case loans.KindInvalidRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeLoanError 领域错误按 kind 返回；其他一律 500，不暴露内部细节
func (s *Srv) writeLoanError(c *gin.Context, err error) {
	var le *loans.Error
	if errors.As(err, &le) {
		c.JSON(StatusForKind(le.Kind()), app.H{"error": le.Detail(), "kind": string(le.Kind())})
		return
	}
	s.internalError(c, "loan operation failed", err)
}

func (s *Srv) internalError(c *gin.Context, msg string, err error) {
	s.Logger.Error(c.Request.Context(), msg, err)
	c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
}
