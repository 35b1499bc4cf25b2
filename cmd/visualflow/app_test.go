package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/visualflow/config"
	"github.com/BaSui01/visualflow/internal/migration"
	"github.com/BaSui01/visualflow/session"
)

// =============================================================================
// 🧪 组件装配测试
// =============================================================================

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Type = "memory"
	cfg.Database = config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "visualflow.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	return cfg
}

// The binary links both the migrate sqlite backend and the gorm sqlite
// dialector; this runs the two against one file.
func TestNewApp_MigratedSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Close())

	a, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.close(ctx, "visualflow_test")

	require.NotNil(t, a.pool)
	require.NotNil(t, a.sessions)
	assert.Nil(t, a.replicate)
	assert.Nil(t, a.gemini)

	_, err = a.findSession(ctx, "missing", "u1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	require.NoError(t, a.sessions.Save(ctx, &session.VideoSession{
		ID:              "s1",
		UserID:          "u1",
		Topic:           "Water Cycle",
		GeneratedScript: `{"hook":{"text":"hi"},"concept":{},"process":{},"conclusion":{}}`,
	}))

	script, err := loadScript(ctx, a, "", "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", script["hook"].Text)
	assert.NoError(t, script.Validate())
}

func TestNewApp_WithoutDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	a, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.close(ctx, "visualflow_test")

	assert.Nil(t, a.pool)
	assert.Nil(t, a.sessions)

	_, err = a.findSession(ctx, "s1", "u1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = loadScript(ctx, a, "", "u1", "s1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestNewApp_UnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "s3"

	_, err := newApp(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewApp_ProvidersFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Providers.Replicate.APIToken = "r8_test"
	cfg.Providers.Gemini.APIKey = "gm_test"

	a, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.close(ctx, "visualflow_test")

	assert.NotNil(t, a.replicate)
	assert.NotNil(t, a.gemini)
}

// =============================================================================
// 🧪 配置加载测试
// =============================================================================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestNewConfigLoader_Validators(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		validators []func(*config.Config) error
		wantErr    string
	}{
		{
			name: "no extra validators",
			body: "storage:\n  type: memory\n",
		},
		{
			name:       "serve without signing secret",
			body:       "storage:\n  type: memory\n",
			validators: []func(*config.Config) error{requireSigningSecret},
			wantErr:    "signing_secret",
		},
		{
			name:       "serve with signing secret",
			body:       "storage:\n  type: memory\n  signing_secret: s3cret\n",
			validators: []func(*config.Config) error{requireSigningSecret},
		},
		{
			name:       "batch without replicate token",
			body:       "storage:\n  type: memory\n",
			validators: []func(*config.Config) error{requireReplicateToken},
			wantErr:    "api_token",
		},
		{
			name:       "batch with replicate token",
			body:       "storage:\n  type: memory\nproviders:\n  replicate:\n    api_token: r8_test\n",
			validators: []func(*config.Config) error{requireReplicateToken},
		},
		{
			name:       "general validation runs first",
			body:       "storage:\n  type: s3\n  signing_secret: s3cret\n",
			validators: []func(*config.Config) error{requireSigningSecret},
			wantErr:    "storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newConfigLoader(writeConfig(t, tt.body), tt.validators...).Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "config validation failed")
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "memory", cfg.Storage.Type)
		})
	}
}

func TestInitLogger(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")

	logger := initLogger(config.LogConfig{Level: "warn", Format: "json", OutputPaths: []string{out}})
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger.Warn("disk nearly full")
	_ = logger.Sync()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"disk nearly full"`)
	assert.Contains(t, string(data), `"timestamp"`)

	debug := initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{out}})
	assert.True(t, debug.Core().Enabled(zapcore.DebugLevel))
}
