// Command overdue-worker runs the overdue sweep on its own schedule,
// outside the API process. Pass -once to run a single cycle and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep cycle and exit")
	flag.Parse()

	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "lending-overdue-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.WarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.MustNew(ctx, cfg, logg)
	defer a.Close()

	if *once {
		if err := a.Cron.RunOnce(ctx); err != nil {
			logg.Error(ctx, "overdue sweep cycle", err)
		}
		return
	}
	if err := a.Cron.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "overdue worker stopped", err)
	}
}
