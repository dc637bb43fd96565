// Package app 跑批驱动共用的启动脚手架
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/research-patron/kikidoko/internal/config"
	"github.com/research-patron/kikidoko/internal/logger"
	"github.com/research-patron/kikidoko/internal/store"
)

// 退出码约定：配置错误2（运维可据此区分环境问题与运行失败），运行中止1
const (
	ExitConfigError = 2
	ExitRunError    = 1
)

// App 一次跑批运行的共通依赖
type App struct {
	Cfg    *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Store  *store.Store
}

// Bootstrap 加载配置并初始化日志/数据库
// 配置错误直接以退出码2终止进程（任何I/O之前fail fast）
func Bootstrap(ctx context.Context, jobName string) *App {
	// .env是本地开发便利，不存在时静默跳过
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(ExitConfigError)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(ExitConfigError)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, jobName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(ExitConfigError)
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Error("Failed to open database", zap.Error(err))
		log.Sync()
		os.Exit(ExitRunError)
	}

	documentStore := store.New(db, log)
	if err := documentStore.EnsureSchema(ctx); err != nil {
		log.Error("Failed to ensure schema", zap.Error(err))
		db.Close()
		log.Sync()
		os.Exit(ExitRunError)
	}

	return &App{Cfg: cfg, Logger: log, DB: db, Store: documentStore}
}

// Close 释放共通依赖
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
}

// Fail 记录运行失败并以退出码1终止
func (a *App) Fail(message string, err error) {
	a.Logger.Error(message, zap.Error(err))
	a.Close()
	os.Exit(ExitRunError)
}
