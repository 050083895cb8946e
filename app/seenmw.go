// app/seenmw.go
package app

import (
	"time"

	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/kv"
	"Gin_postgres_redis_lending/loans"
	"Gin_postgres_redis_lending/logger"

	"github.com/gin-gonic/gin"
)

// TouchLastSeen 节流写入 last_seen_at：每个用户每 throttle 最多一次
func TouchLastSeen(repo *db.Repo, store KV, clock loans.Clock, throttle time.Duration, logg *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := UserID(c)
		if uid == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if ok, err := store.SetNX(ctx, kv.Key("user", "lastseen", uid), "1", throttle); err == nil && ok {
			if err := repo.TouchUserSeen(ctx, uid, clock.Now()); err != nil {
				// 不阻塞请求
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "touch last seen failed")
			}
		}
		c.Next()
	}
}
