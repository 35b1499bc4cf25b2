// =============================================================================
// VisualFlow 主入口
// =============================================================================
// 教育视频流水线的视觉一致性命令行工具
//
// 使用方法:
//
//	visualflow diagram --user u --session s    # 生成图示并提取视觉风格
//	visualflow batch --user u --session s      # 批量生成分镜图像
//	visualflow enhance --user u --session s    # 输出一致性增强后的 prompt
//	visualflow serve                           # 启动对象下载服务
//	visualflow migrate up                      # 运行数据库迁移
//	visualflow version                         # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/visualflow/agents/batch"
	"github.com/BaSui01/visualflow/agents/diagram"
	"github.com/BaSui01/visualflow/config"
	"github.com/BaSui01/visualflow/consistency"
	"github.com/BaSui01/visualflow/llm/image"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "diagram":
		runDiagram(os.Args[2:])
	case "batch":
		runBatch(os.Args[2:])
	case "enhance":
		runEnhance(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🔧 公共启动流程
// =============================================================================

// newConfigLoader 构建加载器：通用校验之后依次执行子命令的附加校验
func newConfigLoader(configPath string, validators ...func(*config.Config) error) *config.Loader {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	for _, v := range validators {
		loader = loader.WithValidator(v)
	}
	return loader
}

// loadConfig 加载并校验配置
func loadConfig(configPath string, validators ...func(*config.Config) error) *config.Config {
	cfg, err := newConfigLoader(configPath, validators...).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// requireSigningSecret 签名密钥是对外提供对象下载的前提
func requireSigningSecret(cfg *config.Config) error {
	if cfg.Storage.SigningSecret == "" {
		return errors.New("storage.signing_secret is required to serve objects")
	}
	return nil
}

// requireReplicateToken 批量生成只走 Replicate
func requireReplicateToken(cfg *config.Config) error {
	if cfg.Providers.Replicate.APIToken == "" {
		return errors.New("providers.replicate.api_token is required for batch generation")
	}
	return nil
}

// signalContext 在收到 SIGINT/SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// bootstrap 加载配置、初始化日志并装配运行时组件
func bootstrap(ctx context.Context, configPath string, validators ...func(*config.Config) error) (*app, *zap.Logger) {
	cfg := loadConfig(configPath, validators...)
	logger := initLogger(cfg.Log)

	logger.Info("Starting VisualFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return a, logger
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
	}
}

// =============================================================================
// 🎨 diagram 命令
// =============================================================================

func runDiagram(args []string) {
	fs := flag.NewFlagSet("diagram", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "User ID")
	sessionID := fs.String("session", "", "Session ID")
	_ = fs.Parse(args)

	if *userID == "" || *sessionID == "" {
		fmt.Fprintln(os.Stderr, "Both --user and --session are required")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, logger := bootstrap(ctx, *configPath)
	defer logger.Sync()

	opts := []diagram.Option{
		diagram.WithConsistency(a.extractor, a.states),
		diagram.WithReporter(a.reporter),
		diagram.WithRecorder(a.collector),
		diagram.WithPresignTTL(a.cfg.Storage.PresignTTL),
	}
	if a.replicate != nil {
		opts = append(opts, diagram.WithReplicate(a.replicate))
	}
	if a.gemini != nil {
		opts = append(opts, diagram.WithGemini(a.gemini))
	}
	if a.sessions != nil {
		opts = append(opts, diagram.WithSessions(a.sessions))
	}

	result, err := diagram.New(a.store, logger, opts...).Process(ctx, diagram.Input{
		UserID:    *userID,
		SessionID: *sessionID,
	})
	a.close(context.Background(), "visualflow_diagram")
	if err != nil {
		logger.Error("Diagram generation failed", zap.Error(err))
		os.Exit(1)
	}
	printJSON(result)
}

// =============================================================================
// 🎞️ batch 命令
// =============================================================================

func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "User ID")
	sessionID := fs.String("session", "", "Session ID")
	scriptPath := fs.String("script", "", "Script JSON file (default: the session's generated script)")
	model := fs.String("model", "", "Replicate model (flux-pro, flux-dev, flux-schnell, sdxl)")
	perPart := fs.Int("images-per-part", 0, "Images generated for each script part")
	_ = fs.Parse(args)

	if *userID == "" || *sessionID == "" {
		fmt.Fprintln(os.Stderr, "Both --user and --session are required")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, logger := bootstrap(ctx, *configPath, requireReplicateToken)
	defer logger.Sync()

	script, err := loadScript(ctx, a, *scriptPath, *userID, *sessionID)
	if err != nil {
		a.close(context.Background(), "visualflow_batch")
		logger.Fatal("Failed to load script", zap.Error(err))
	}

	bc := a.cfg.Batch
	if *model == "" {
		*model = bc.Model
	}
	if *perPart <= 0 {
		*perPart = bc.ImagesPerPart
	}

	provider := image.NewReplicateProvider(replicateConfig(a.cfg.Providers.Replicate, *model))
	applier := consistency.NewApplier(a.states, *userID, *sessionID, logger,
		consistency.WithApplierRecorder(a.collector))
	applier.Initialize(ctx)

	gen := batch.NewGenerator(provider, logger,
		batch.WithEnhancer(applier),
		batch.WithStore(a.store, a.cfg.Storage.PresignTTL),
		batch.WithRecorder(a.collector),
		batch.WithMaxConcurrency(bc.MaxConcurrency),
		batch.WithRateInterval(bc.RateInterval),
	)

	out := gen.Process(ctx, batch.Request{
		SessionID:     *sessionID,
		UserID:        *userID,
		Script:        script,
		Model:         *model,
		ImagesPerPart: *perPart,
	})
	a.close(context.Background(), "visualflow_batch")

	printJSON(out)
	if !out.Success {
		os.Exit(1)
	}
}

// loadScript 优先读取 --script 文件，否则使用会话中保存的脚本
func loadScript(ctx context.Context, a *app, path, userID, sessionID string) (batch.Script, error) {
	if path != "" {
		return batch.LoadScript(path)
	}
	sess, err := a.findSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.GeneratedScript == "" {
		return nil, fmt.Errorf("session %s has no generated script", sessionID)
	}
	return batch.ParseScript([]byte(sess.GeneratedScript))
}

// =============================================================================
// ✨ enhance 命令
// =============================================================================

func runEnhance(args []string) {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "User ID")
	sessionID := fs.String("session", "", "Session ID")
	scriptPath := fs.String("script", "", "Script JSON file (default: the session's generated script)")
	_ = fs.Parse(args)

	if *userID == "" || *sessionID == "" {
		fmt.Fprintln(os.Stderr, "Both --user and --session are required")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, logger := bootstrap(ctx, *configPath)
	defer logger.Sync()

	script, err := loadScript(ctx, a, *scriptPath, *userID, *sessionID)
	if err != nil {
		a.close(context.Background(), "visualflow_enhance")
		logger.Fatal("Failed to load script", zap.Error(err))
	}

	applier := consistency.NewApplier(a.states, *userID, *sessionID, logger,
		consistency.WithApplierRecorder(a.collector))
	enhanced := applier.EnhanceAll(ctx, segmentPrompts(script))
	a.close(context.Background(), "visualflow_enhance")
	printJSON(enhanced)
}

// segmentPrompts 按叙事顺序为脚本中存在的片段构造基础 prompt
func segmentPrompts(script batch.Script) []consistency.SegmentPrompt {
	prompts := make([]consistency.SegmentPrompt, 0, len(script))
	for _, seg := range consistency.Segments {
		part, ok := script[string(seg)]
		if !ok {
			continue
		}
		prompts = append(prompts, consistency.SegmentPrompt{
			Segment: string(seg),
			Prompt:  batch.BuildPrompt(part, -1),
		})
	}
	return prompts
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("VisualFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`VisualFlow - visual consistency for educational video generation

Usage:
  visualflow <command> [options]

Commands:
  diagram   Generate the lesson diagram and seed the visual style
  batch     Generate micro-scene images for every script part
  enhance   Print the consistency-enhanced prompt for each segment
  serve     Serve presigned object downloads, health and metrics
  migrate   Database migration commands
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)
  --user <id>       User ID owning the session
  --session <id>    Video session ID

Options for 'batch':
  --script <path>          Script JSON file (default: the session's script)
  --model <name>           flux-pro, flux-dev, flux-schnell or sdxl
  --images-per-part <n>    Images per script part

Examples:
  visualflow diagram --user u1 --session s1
  visualflow batch --user u1 --session s1 --model sdxl --images-per-part 3
  visualflow enhance --user u1 --session s1 --script script.json
  visualflow serve --config /etc/visualflow/config.yaml
  visualflow migrate up`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
