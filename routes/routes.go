package routes

import (
	"context"
	"net/http"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/controllers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	itemCtl := controllers.NewItemController(s)
	loanCtl := controllers.NewLoanController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Repo, a.Logger)
	seenMW := app.TouchLastSeen(s.Repo, a.KV, a.Clock, a.Config.Web.SeenThrottle, a.Logger)
	notBlockedMW := app.NotBlocked(s.Repo, a.Clock)

	// ------------------------------
	// 运维
	// ------------------------------
	r.GET("/healthz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.Health(ctx); err != nil {
			a.Logger.Error(ctx, "health check failed", err)
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	// ------------------------------
	// WebAuthn（公开+受保护）
	// ------------------------------
	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration) // ?username=

		wa.POST("/login/begin", s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin) // ?sessionId=&username=
	}

	waAuth := wa.Group("", authMW, seenMW)
	{
		waAuth.GET("/whoami", s.WhoAmI)
		waAuth.POST("/logout", s.Logout)
	}

	// 已登录用户添加新凭据（绑定手机等）
	creds := r.Group("/api/credentials", authMW, seenMW)
	{
		creds.POST("/add/begin", s.BeginAddCredential)
		creds.POST("/add/finish", s.FinishAddCredential)
	}

	// ------------------------------
	// 物品
	// ------------------------------
	items := r.Group("/api/items", authMW, seenMW)
	{
		items.POST("", itemCtl.CreateItem)
		items.GET("", itemCtl.ListItems) // ?q=&category=&status=&mine=true&page=&size=
		items.GET("/:id", itemCtl.GetItem)

		// 仅所有者；编辑不修改可借状态，有借用记录时不能删除
		items.PUT("/:id", itemCtl.UpdateItem)
		items.DELETE("/:id", itemCtl.DeleteItem)
	}

	// ------------------------------
	// 借用单生命周期
	// ------------------------------
	loans := r.Group("/api/loans", authMW, seenMW)
	{
		loans.POST("", notBlockedMW, loanCtl.CreateLoan)
		loans.GET("", loanCtl.ListLoans) // ?role=borrower|owner&status=
		loans.GET("/:id", loanCtl.GetLoan)

		loans.PUT("/:id/approve", loanCtl.Approve())
		loans.PUT("/:id/reject", loanCtl.Reject())
		loans.PUT("/:id/activate", loanCtl.Activate())
		loans.PUT("/:id/initiate-return", loanCtl.InitiateReturn())
		loans.PUT("/:id/confirm-return", loanCtl.ConfirmReturn())
		loans.PUT("/:id/settle", loanCtl.Settle())
		loans.PUT("/:id/status", loanCtl.UpdateStatus)
	}
}
