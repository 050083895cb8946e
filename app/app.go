package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/cron"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/kv"
	"Gin_postgres_redis_lending/loans"
	"Gin_postgres_redis_lending/logger"
	"Gin_postgres_redis_lending/metrics"
	"Gin_postgres_redis_lending/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// KV is the Redis surface the app needs; *kv.Client satisfies it.
type KV interface {
	session.KV
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Ping(ctx context.Context) error
}

// App 聚合各依赖
type App struct {
	Router   *gin.Engine
	DB       *gorm.DB
	KV       KV
	WA       *webauthn.WebAuthn
	Config   *config.Config
	Logger   *logger.Logger
	Clock    loans.Clock
	Registry *prometheus.Registry

	Repo    *db.Repo
	Loans   *loans.Service
	Sweeper *loans.OverdueSweeper
	Cron    *cron.Service

	appSess    *session.AppSessionStore
	ceremonies *session.CeremonyStore
	closers    []func() error
}

// Params are the already-connected dependencies Build wires together.
type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	KV     KV
	Clock  loans.Clock
	// CronLock defaults to a Redis lock on Config.Overdue.LockKey.
	CronLock cron.Lock
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }
func (a *App) Ceremonies() *session.CeremonyStore    { return a.ceremonies }

// New connects Postgres and Redis and builds the App.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*App, error) {
	dbConn, err := db.Connect(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rdb, err := kv.New(pingCtx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	a, err := Build(Params{Config: cfg, Logger: logg, DB: dbConn, KV: rdb})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close, func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return a, nil
}

// MustNew 启动失败直接退出
func MustNew(ctx context.Context, cfg *config.Config, logg *logger.Logger) *App {
	a, err := New(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "startup failed", err)
		panic(err)
	}
	return a
}

// Build wires the lending core, the cron scheduler and the gin engine.
func Build(p Params) (*App, error) {
	if p.Config == nil || p.DB == nil || p.KV == nil {
		return nil, errors.New("config, db and kv are required")
	}
	cfg := p.Config
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := p.Clock
	if clock == nil {
		clock = loans.SystemClock{}
	}

	// --- WebAuthn RP ---
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Lending Passkeys",
		RPID:          cfg.Web.RPID,
		RPOrigins:     cfg.Web.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	loanMetrics := metrics.NewLoanMetrics(reg)
	cronMetrics := metrics.NewCronJobMetrics(reg)

	// --- Lending core ---
	repo := db.NewRepo(p.DB)
	retry := []loans.RetryOption{
		loans.WithMaxAttempts(cfg.Loans.RetryAttempts),
		loans.WithBaseDelay(cfg.Loans.RetryBaseDelay),
	}
	svc, err := loans.NewService(loans.ServiceParams{
		Store:   repo,
		Clock:   clock,
		Logger:  logg,
		Metrics: loanMetrics,
		Retry:   retry,
	})
	if err != nil {
		return nil, fmt.Errorf("loan service: %w", err)
	}
	sweeper, err := loans.NewOverdueSweeper(loans.SweeperParams{
		Store:    repo,
		Logger:   logg,
		Metrics:  loanMetrics,
		BlockFor: cfg.Overdue.BlockFor,
		Retry:    retry,
	})
	if err != nil {
		return nil, fmt.Errorf("overdue sweeper: %w", err)
	}

	// --- Cron ---
	lock := p.CronLock
	if lock == nil {
		if lock, err = cron.NewRedisLock(p.KV, cfg.Overdue.LockKey, cfg.Overdue.LockTTL); err != nil {
			return nil, fmt.Errorf("cron lock: %w", err)
		}
	}
	job, err := cron.NewOverdueJob(sweeper, clock)
	if err != nil {
		return nil, err
	}
	cronSvc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Overdue.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}

	// --- Gin ---
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logg))
	useCORS(r, cfg.Web)

	return &App{
		Router:   r,
		DB:       p.DB,
		KV:       p.KV,
		WA:       wa,
		Config:   cfg,
		Logger:   logg,
		Clock:    clock,
		Registry: reg,
		Repo:     repo,
		Loans:    svc,
		Sweeper:  sweeper,
		Cron:     cronSvc,

		appSess:    session.NewAppSessionStore(p.KV, cfg.Web.AppSessionTTL),
		ceremonies: session.NewCeremonyStore(p.KV, cfg.Web.CeremonyTTL),
	}, nil
}

// Health pings the database and Redis.
func (a *App) Health(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return multierr.Combine(
		sqlDB.PingContext(ctx),
		a.KV.Ping(ctx),
	)
}

func (a *App) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c())
	}
	return err
}
