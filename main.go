package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/logger"
	"Gin_postgres_redis_lending/routes"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "lending-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.WarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.MustNew(ctx, cfg, logg)
	defer func() {
		if err := application.Close(); err != nil {
			logg.Error(context.Background(), "close app", err)
		}
	}()

	routes.RegisterRoutes(application.Router, application)

	// 逾期扫描：同进程运行，多实例由 Redis 锁互斥
	if cfg.Overdue.InProcess {
		go func() {
			if err := application.Cron.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "overdue cron stopped", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info(logg.WithField(ctx, "addr", srv.Addr), "listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "http server", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http shutdown", err)
	}
	logg.Info(shutdownCtx, "stopped")
}
