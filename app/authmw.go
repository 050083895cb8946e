package app

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/loans"
	"Gin_postgres_redis_lending/logger"
	"Gin_postgres_redis_lending/session"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const AppSessionCookie = "app_session"

const (
	ctxUserID   = "userID"
	ctxUsername = "username"
)

// UserID returns the authenticated caller set by AuthRequired.
func UserID(c *gin.Context) string {
	v, _ := c.Get(ctxUserID)
	uid, _ := v.(string)
	return uid
}

func AuthRequired(appSess *session.AppSessionStore, repo *db.Repo, logg *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		ctx := c.Request.Context()
		as, err := appSess.Get(ctx, ck.Value)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				logg.Error(ctx, "load app session", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}

		// 确认用户仍存在
		u, err := repo.FindUserByID(ctx, as.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				_ = appSess.Delete(ctx, ck.Value)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		// 把 userID 放进上下文，后续 handler 可用
		c.Set(ctxUserID, u.ID)
		c.Set(ctxUsername, u.Username)
		c.Request = c.Request.WithContext(logg.WithUserID(ctx, u.ID))

		c.Next()
	}
}

// NotBlocked 逾期被封禁的用户不能发起新借用
func NotBlocked(repo *db.Repo, clock loans.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := repo.FindUserByID(c.Request.Context(), UserID(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if u.IsCurrentlyBlocked(clock.Now()) {
			body := H{"error": "user is blocked"}
			if u.BlockReason != nil {
				body["reason"] = *u.BlockReason
			}
			if u.BlockedUntil != nil {
				body["blockedUntil"] = u.BlockedUntil
			}
			c.AbortWithStatusJSON(http.StatusForbidden, body)
			return
		}
		c.Next()
	}
}
