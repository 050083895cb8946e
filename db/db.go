package db

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"Gin_postgres_redis_lending/config"
	"Gin_postgres_redis_lending/logger"
	"Gin_postgres_redis_lending/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 统一 gorm 配置：静默日志 + 翻译驱动错误（唯一键冲突 -> gorm.ErrDuplicatedKey）
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	return conn, nil
}

// Connect opens the Postgres pool and applies the schema.
func Connect(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*gorm.DB, error) {
	conn, err := Open(postgres.New(postgres.Config{DSN: cfg.DSN(), PreferSimpleProtocol: true}))
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	logg.Info(ctx, "database connected")
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Credential{}, &models.Item{}, &models.Loan{}); err != nil {
		return err
	}

	// 同一物品最多一条占用中的借用单（含逾期未结清）
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_item
	  ON %s (item_id)
	  WHERE status IN (%s);
	`, models.LoanTable, models.LoanTable, statusList(models.HoldingStatuses()))).Error; err != nil {
		return err
	}

	// 逾期扫描只看这两种状态
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_overdue_candidates
	  ON %s (end_date)
	  WHERE status IN (%s);
	`, models.LoanTable, models.LoanTable, statusList(overdueCandidates))).Error; err != nil {
		return err
	}

	return nil
}

var overdueCandidates = []models.LoanStatus{models.LoanActive, models.LoanReturnInitiated}

// statusList renders a closed set of status constants as a SQL literal list.
func statusList(ss []models.LoanStatus) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

func statusStrings(ss []models.LoanStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// WithTx executes fn inside a transaction, rolling back on error/panic.
func WithTx(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
