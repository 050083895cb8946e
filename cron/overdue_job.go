package cron

import (
	"context"
	"errors"
	"time"

	"Gin_postgres_redis_lending/loans"
)

// OverdueJobName labels the sweep in logs and metrics.
const OverdueJobName = "overdue-sweep"

type sweeper interface {
	Run(ctx context.Context, now time.Time) error
}

type overdueJob struct {
	sweeper sweeper
	clock   loans.Clock
}

// NewOverdueJob runs the overdue sweeper with the clock's current time.
func NewOverdueJob(s sweeper, clock loans.Clock) (Job, error) {
	if s == nil {
		return nil, errors.New("sweeper required")
	}
	if clock == nil {
		clock = loans.SystemClock{}
	}
	return &overdueJob{sweeper: s, clock: clock}, nil
}

func (j *overdueJob) Name() string { return OverdueJobName }

func (j *overdueJob) Run(ctx context.Context) error {
	return j.sweeper.Run(ctx, j.clock.Now())
}
