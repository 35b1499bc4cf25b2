// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "flux-schnell", cfg.Batch.Model)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "visualflow.yaml")

	yamlContent := `
storage:
  type: redis
  key_prefix: "vf:"
  presign_ttl: 1h

redis:
  addr: "redis.example.com:6379"
  db: 2

providers:
  replicate:
    api_token: "r8_test"
    model: "flux-dev"
  openrouter:
    timeout: 15s

batch:
  images_per_part: 3

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "vf:", cfg.Storage.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.Storage.PresignTTL)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "r8_test", cfg.Providers.Replicate.APIToken)
	assert.Equal(t, "flux-dev", cfg.Providers.Replicate.Model)
	assert.Equal(t, 15*time.Second, cfg.Providers.OpenRouter.Timeout)
	assert.Equal(t, 3, cfg.Batch.ImagesPerPart)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, "gemini-2.5-flash-image", cfg.Providers.Gemini.Model)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"VISUALFLOW_STORAGE_TYPE":                  "memory",
		"VISUALFLOW_PROVIDERS_REPLICATE_API_TOKEN": "env-token",
		"VISUALFLOW_PROVIDERS_OPENROUTER_API_KEY":  "or-key",
		"VISUALFLOW_BATCH_RATE_INTERVAL":           "1s",
		"VISUALFLOW_TELEMETRY_ENABLED":             "true",
		"VISUALFLOW_TELEMETRY_SAMPLE_RATE":         "0.5",
		"VISUALFLOW_LOG_OUTPUT_PATHS":              "stdout, /tmp/vf.log",
		"VISUALFLOW_ORCHESTRATOR_STATUS_URL":       "ws://orchestrator:8000/ws",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "env-token", cfg.Providers.Replicate.APIToken)
	assert.Equal(t, "or-key", cfg.Providers.OpenRouter.APIKey)
	assert.Equal(t, time.Second, cfg.Batch.RateInterval)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/tmp/vf.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, "ws://orchestrator:8000/ws", cfg.Orchestrator.StatusURL)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "visualflow.yaml")
	yamlContent := `
batch:
  model: "sdxl"
  images_per_part: 4
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))
	t.Setenv("VISUALFLOW_BATCH_MODEL", "flux-pro")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "flux-pro", cfg.Batch.Model)
	assert.Equal(t, 4, cfg.Batch.ImagesPerPart)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_BATCH_IMAGES_PER_PART", "5")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Batch.ImagesPerPart)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Loader
	}{
		{
			name: "invalid yaml",
			setup: func(t *testing.T) *Loader {
				p := filepath.Join(t.TempDir(), "bad.yaml")
				require.NoError(t, os.WriteFile(p, []byte("batch: [unclosed"), 0644))
				return NewLoader().WithConfigPath(p)
			},
		},
		{
			name: "invalid env int",
			setup: func(t *testing.T) *Loader {
				t.Setenv("VISUALFLOW_BATCH_IMAGES_PER_PART", "many")
				return NewLoader()
			},
		},
		{
			name: "invalid env duration",
			setup: func(t *testing.T) *Loader {
				t.Setenv("VISUALFLOW_BATCH_RATE_INTERVAL", "soon")
				return NewLoader()
			},
		},
		{
			name: "validator rejects",
			setup: func(t *testing.T) *Loader {
				t.Setenv("VISUALFLOW_STORAGE_TYPE", "s3")
				return NewLoader().WithValidator((*Config).Validate)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.setup(t).Load()
			assert.Error(t, err)
		})
	}
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Batch, cfg.Batch)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"file without path", func(c *Config) { c.Storage.BasePath = "" }, "base_path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database driver"},
		{"zero images", func(c *Config) { c.Batch.ImagesPerPart = 0 }, "images_per_part"},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
		{"cert without key", func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, "tls_key_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		cfg  DatabaseConfig
		want string
	}{
		{
			DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "vf", SSLMode: "disable"},
			"host=db port=5432 user=u password=p dbname=vf sslmode=disable",
		},
		{
			DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "vf"},
			"u:p@tcp(db:3306)/vf?parseTime=true",
		},
		{DatabaseConfig{Driver: "sqlite", Name: "/tmp/vf.db"}, "/tmp/vf.db"},
		{DatabaseConfig{Driver: "oracle"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Driver, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
