// Package config 环境变量配置（所有跑批任务共用）
// 配置错误在任何I/O之前fail fast，驱动以保留退出码2退出
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig PostgreSQL文档库连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN 获取数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置（登记簿缓存）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config 跑批任务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// 文档库collection名
	Store struct {
		Collection      string // 设备文档
		StatsCollection string // 汇总统计文档
	}

	// EQNET主登记簿
	Eqnet struct {
		SearchURL        string
		Timeout          time.Duration
		CacheEnabled     bool
		CacheKey         string
		CacheTTL         time.Duration
		CandidateLimit   int // 审计持久化的Top-N
		MaxCandidatePool int // 打分前候选池上限
		Force            bool // 已匹配文档也重新解析

		// 匹配判定阈值（经验值，按环境可调）
		HighScore     int
		HighLoneScore int
		HighMargin    int
		MediumScore   int
		MediumMargin  int
	}

	// 批量运行共通参数
	Run struct {
		BatchSize    int           // 每批提交条数（1〜500）
		PageSize     int           // 游标扫描每页条数
		MaxRetries   int           // 瞬断错误最大重试次数
		BaseDelay    time.Duration // 退避基数（base×2^attempt）
		MaxDelay     time.Duration // 退避上限
		BatchSleep   time.Duration // 每批提交后的限流休眠
		RequestSleep time.Duration // 每条记录处理后的限流休眠
		Limit        int           // 处理条数上限（0=不限，部分运行也要冲刷在途批）
		LogEvery     int           // 进度日志间隔
		DryRun       bool
	}

	// registry-sync固有
	Sync struct {
		RegistryPath       string
		RegistryVersion    string
		PreviewOut         string
		FetchTimeout       time.Duration
		LimitOrgs          int
		LimitRecordsPerOrg int
	}

	// search-backfill固有
	Backfill struct {
		ForceTokens         bool
		ForceAliases        bool
		SkipRegion          bool
		WriteSummary        bool
		WriteUIFilters      bool
		WritePrefectureOrgs bool
		WriteDataVersion    bool
	}

	// eqnet-org-gap-fill固有
	GapFill struct {
		MissingOrgsOut string
		LimitOrgs      int
	}

	// snapshot-export固有
	Export struct {
		Output string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（默认值内建）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "kikidoko")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 4)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 2)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Store.Collection = getEnv("STORE_COLLECTION", "equipment")
	cfg.Store.StatsCollection = getEnv("STORE_STATS_COLLECTION", "stats")

	cfg.Eqnet.SearchURL = getEnv("EQNET_SEARCH_URL", "https://eqnet.jp/public/equipment/search.json")
	cfg.Eqnet.Timeout = getEnvDuration("EQNET_TIMEOUT", 30*time.Second)
	cfg.Eqnet.CacheEnabled = getEnvBool("EQNET_CACHE_ENABLED", true)
	cfg.Eqnet.CacheKey = getEnv("EQNET_CACHE_KEY", "kikidoko:eqnet:master")
	cfg.Eqnet.CacheTTL = getEnvDuration("EQNET_CACHE_TTL", 6*time.Hour)
	cfg.Eqnet.CandidateLimit = getEnvInt("EQNET_CANDIDATE_LIMIT", 5)
	cfg.Eqnet.MaxCandidatePool = getEnvInt("EQNET_MAX_CANDIDATE_POOL", 450)
	cfg.Eqnet.Force = getEnvBool("EQNET_FORCE", false)
	cfg.Eqnet.HighScore = getEnvInt("EQNET_HIGH_SCORE", 88)
	cfg.Eqnet.HighLoneScore = getEnvInt("EQNET_HIGH_LONE_SCORE", 92)
	cfg.Eqnet.HighMargin = getEnvInt("EQNET_HIGH_MARGIN", 6)
	cfg.Eqnet.MediumScore = getEnvInt("EQNET_MEDIUM_SCORE", 82)
	cfg.Eqnet.MediumMargin = getEnvInt("EQNET_MEDIUM_MARGIN", 10)

	cfg.Run.BatchSize = getEnvInt("RUN_BATCH_SIZE", 200)
	cfg.Run.PageSize = getEnvInt("RUN_PAGE_SIZE", 400)
	cfg.Run.MaxRetries = getEnvInt("RUN_MAX_RETRIES", 8)
	cfg.Run.BaseDelay = getEnvDuration("RUN_BASE_DELAY", time.Second)
	cfg.Run.MaxDelay = getEnvDuration("RUN_MAX_DELAY", 30*time.Second)
	cfg.Run.BatchSleep = getEnvDuration("RUN_BATCH_SLEEP", 0)
	cfg.Run.RequestSleep = getEnvDuration("RUN_REQUEST_SLEEP", 0)
	cfg.Run.Limit = getEnvInt("RUN_LIMIT", 0)
	cfg.Run.LogEvery = getEnvInt("RUN_LOG_EVERY", 50)
	cfg.Run.DryRun = getEnvBool("RUN_DRY_RUN", false)

	cfg.Sync.RegistryPath = getEnv("SYNC_REGISTRY_PATH", "config/source_registry_low_count.json")
	cfg.Sync.RegistryVersion = getEnv("SYNC_REGISTRY_VERSION", "")
	cfg.Sync.PreviewOut = getEnv("SYNC_PREVIEW_OUT", "source_registry_sync_preview.xlsx")
	cfg.Sync.FetchTimeout = getEnvDuration("SYNC_FETCH_TIMEOUT", 25*time.Second)
	cfg.Sync.LimitOrgs = getEnvInt("SYNC_LIMIT_ORGS", 0)
	cfg.Sync.LimitRecordsPerOrg = getEnvInt("SYNC_LIMIT_RECORDS_PER_ORG", 0)

	cfg.Backfill.ForceTokens = getEnvBool("BACKFILL_FORCE_TOKENS", false)
	cfg.Backfill.ForceAliases = getEnvBool("BACKFILL_FORCE_ALIASES", false)
	cfg.Backfill.SkipRegion = getEnvBool("BACKFILL_SKIP_REGION", false)
	cfg.Backfill.WriteSummary = getEnvBool("BACKFILL_WRITE_SUMMARY", false)
	cfg.Backfill.WriteUIFilters = getEnvBool("BACKFILL_WRITE_UI_FILTERS", false)
	cfg.Backfill.WritePrefectureOrgs = getEnvBool("BACKFILL_WRITE_PREFECTURE_ORGS", false)
	cfg.Backfill.WriteDataVersion = getEnvBool("BACKFILL_WRITE_DATA_VERSION", false)

	cfg.GapFill.MissingOrgsOut = getEnv("GAP_FILL_MISSING_ORGS_OUT", "eqnet_missing_orgs.xlsx")
	cfg.GapFill.LimitOrgs = getEnvInt("GAP_FILL_LIMIT_ORGS", 0)

	cfg.Export.Output = getEnv("EXPORT_OUTPUT", "equipment_snapshot.json.gz")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Validate 配置校验（任何I/O之前执行）
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("STORE_COLLECTION is required")
	}
	if c.Run.BatchSize <= 0 || c.Run.BatchSize > 500 {
		return fmt.Errorf("RUN_BATCH_SIZE must be between 1 and 500")
	}
	if c.Run.PageSize <= 0 {
		return fmt.Errorf("RUN_PAGE_SIZE must be 1 or greater")
	}
	if c.Run.MaxRetries < 0 {
		return fmt.Errorf("RUN_MAX_RETRIES must be 0 or greater")
	}
	if c.Run.BatchSleep < 0 || c.Run.RequestSleep < 0 {
		return fmt.Errorf("throttle sleeps must be 0 or greater")
	}
	if c.Eqnet.SearchURL == "" {
		return fmt.Errorf("EQNET_SEARCH_URL is required")
	}
	if c.Eqnet.CandidateLimit <= 0 {
		return fmt.Errorf("EQNET_CANDIDATE_LIMIT must be at least 1")
	}
	if c.Eqnet.MaxCandidatePool <= 0 {
		return fmt.Errorf("EQNET_MAX_CANDIDATE_POOL must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "True", "yes":
		return true
	case "0", "false", "False", "no":
		return false
	}
	return defaultValue
}

// getEnvDuration 支持"30s"/"5m"等Go duration表记
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
