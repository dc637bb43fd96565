package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "kikidoko", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "equipment", cfg.Store.Collection)
	assert.Equal(t, "stats", cfg.Store.StatsCollection)

	assert.Equal(t, "https://eqnet.jp/public/equipment/search.json", cfg.Eqnet.SearchURL)
	assert.Equal(t, 30*time.Second, cfg.Eqnet.Timeout)
	assert.True(t, cfg.Eqnet.CacheEnabled)
	assert.Equal(t, 6*time.Hour, cfg.Eqnet.CacheTTL)
	assert.Equal(t, 5, cfg.Eqnet.CandidateLimit)
	assert.Equal(t, 450, cfg.Eqnet.MaxCandidatePool)
	assert.Equal(t, 88, cfg.Eqnet.HighScore)
	assert.Equal(t, 92, cfg.Eqnet.HighLoneScore)
	assert.Equal(t, 6, cfg.Eqnet.HighMargin)
	assert.Equal(t, 82, cfg.Eqnet.MediumScore)
	assert.Equal(t, 10, cfg.Eqnet.MediumMargin)

	assert.Equal(t, 200, cfg.Run.BatchSize)
	assert.Equal(t, 400, cfg.Run.PageSize)
	assert.Equal(t, 8, cfg.Run.MaxRetries)
	assert.Equal(t, time.Second, cfg.Run.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Run.MaxDelay)
	assert.Equal(t, 0, cfg.Run.Limit)
	assert.False(t, cfg.Run.DryRun)

	assert.Equal(t, "equipment_snapshot.json.gz", cfg.Export.Output)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("STORE_COLLECTION", "equipment_staging")
	os.Setenv("EQNET_TIMEOUT", "45s")
	os.Setenv("EQNET_CACHE_ENABLED", "false")
	os.Setenv("RUN_BATCH_SIZE", "100")
	os.Setenv("RUN_DRY_RUN", "true")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "equipment_staging", cfg.Store.Collection)
	assert.Equal(t, 45*time.Second, cfg.Eqnet.Timeout)
	assert.False(t, cfg.Eqnet.CacheEnabled)
	assert.Equal(t, 100, cfg.Run.BatchSize)
	assert.True(t, cfg.Run.DryRun)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestValidate(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	cfg.Run.BatchSize = 0
	assert.Error(t, cfg.Validate())
	cfg.Run.BatchSize = 501
	assert.Error(t, cfg.Validate())
	cfg.Run.BatchSize = 200

	cfg.Database.Host = ""
	assert.Error(t, cfg.Validate())
	cfg.Database.Host = "localhost"

	cfg.Eqnet.SearchURL = ""
	assert.Error(t, cfg.Validate())
	cfg.Eqnet.SearchURL = "https://eqnet.jp/public/equipment/search.json"

	cfg.Eqnet.CandidateLimit = 0
	assert.Error(t, cfg.Validate())
	cfg.Eqnet.CandidateLimit = 5

	assert.NoError(t, cfg.Validate())
}

func TestGetEnv(t *testing.T) {
	// 测试默认值
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	// 测试环境变量存在
	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	// 清理
	os.Unsetenv("TEST_KEY")
}

func TestGetEnvDuration(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))

	os.Setenv("TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Minute))

	// 解析失败时退回默认值
	os.Setenv("TEST_DURATION", "not-a-duration")
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))

	os.Unsetenv("TEST_DURATION")
}
