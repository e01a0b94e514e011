package util

import (
	"io"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase 打开数据库连接，logWriter 为空时关闭 SQL 日志
func InitDatabase(logWriter io.Writer, driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
	if logWriter != nil {
		cfg.Logger = logger.New(
			log.New(logWriter, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		)
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "" || driver == "sqlite" {
		// 内存库需要单连接，否则每个连接都是独立的库
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return db, nil
}
