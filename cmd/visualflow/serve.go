package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/visualflow/internal/metrics"
	"github.com/BaSui01/visualflow/internal/server"
	"github.com/BaSui01/visualflow/storage"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, logger := bootstrap(ctx, *configPath, requireSigningSecret)
	defer logger.Sync()
	defer a.close(context.Background(), "visualflow_serve")

	sc := a.cfg.Storage
	signer, err := storage.NewURLSigner(sc.PublicBaseURL, sc.SigningSecret)
	if err != nil {
		logger.Fatal("Failed to create URL signer", zap.Error(err))
	}
	prefix, err := objectPrefix(sc.PublicBaseURL)
	if err != nil {
		logger.Fatal("Invalid storage.public_base_url", zap.Error(err))
	}

	handler := newServeHandler(prefix, storage.NewHandler(a.store, signer, logger), a.collector, logger)

	srvCfg, err := server.FromServerConfig(a.cfg.Server)
	if err != nil {
		logger.Fatal("Invalid server config", zap.Error(err))
	}
	mgr := server.NewManager(handler, srvCfg, logger)
	if err := mgr.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	logger.Info("Serving objects",
		zap.String("addr", mgr.Addr()),
		zap.String("prefix", prefix))

	mgr.WaitForShutdown(ctx)
	logger.Info("VisualFlow stopped")
}

// newServeHandler 组装路由：预签名对象下载、健康检查与 Prometheus 指标
func newServeHandler(prefix string, objects http.Handler, collector *metrics.Collector, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(prefix+"/", http.StripPrefix(prefix, objects))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": Version,
		})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))

	return Chain(mux,
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
	)
}

// objectPrefix returns the URL path the object handler is mounted under.
func objectPrefix(publicBaseURL string) (string, error) {
	u, err := url.Parse(publicBaseURL)
	if err != nil {
		return "", err
	}
	prefix := strings.TrimRight(u.Path, "/")
	if prefix == "" {
		return "", fmt.Errorf("public base url %q has no path to mount objects under", publicBaseURL)
	}
	return prefix, nil
}
