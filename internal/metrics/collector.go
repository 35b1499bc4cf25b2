// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 图像生成指标
	imageGenerationsTotal   *prometheus.CounterVec
	imageGenerationDuration *prometheus.HistogramVec
	imageGenerationCost     *prometheus.CounterVec

	// 视觉一致性指标
	styleExtractionsTotal   *prometheus.CounterVec
	promptEnhancementsTotal *prometheus.CounterVec
	stateLoadsTotal         *prometheus.CounterVec

	// Agent 指标
	agentRunsTotal   *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用独立的 Registry，
// 便于一次性命令结束前推送到 Pushgateway。
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 图像生成指标
	c.imageGenerationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_generations_total",
			Help:      "Total number of image generation calls",
		},
		[]string{"provider", "model", "status"},
	)

	c.imageGenerationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_generation_duration_seconds",
			Help:      "Image generation duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "model"},
	)

	c.imageGenerationCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_generation_cost_usd_total",
			Help:      "Estimated image generation cost in USD",
		},
		[]string{"provider", "model"},
	)

	// 视觉一致性指标
	c.styleExtractionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "style_extractions_total",
			Help:      "Style extraction attempts by outcome",
		},
		[]string{"outcome"},
	)

	c.promptEnhancementsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_enhancements_total",
			Help:      "Prompt enhancement calls by segment",
		},
		[]string{"segment", "enhanced"},
	)

	c.stateLoadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_loads_total",
			Help:      "Visual state loads by outcome",
		},
		[]string{"outcome"},
	)

	// Agent 指标
	c.agentRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Total number of agent runs",
		},
		[]string{"agent", "status"},
	)

	c.agentRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_run_duration_seconds",
			Help:      "Agent run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"agent"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回指标所在的 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordGeneration 记录一次图像生成调用
func (c *Collector) RecordGeneration(provider, model, status string, duration time.Duration, cost float64) {
	c.imageGenerationsTotal.WithLabelValues(provider, model, status).Inc()
	c.imageGenerationDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if cost > 0 {
		c.imageGenerationCost.WithLabelValues(provider, model).Add(cost)
	}
}

// RecordAgentRun 记录一次智能体运行
func (c *Collector) RecordAgentRun(agent, status string, duration time.Duration) {
	c.agentRunsTotal.WithLabelValues(agent, status).Inc()
	c.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordExtraction 记录风格提取结果
func (c *Collector) RecordExtraction(outcome string) {
	c.styleExtractionsTotal.WithLabelValues(outcome).Inc()
}

// RecordEnhancement 记录提示词增强
func (c *Collector) RecordEnhancement(segment string, enhanced bool) {
	c.promptEnhancementsTotal.WithLabelValues(segment, strconv.FormatBool(enhanced)).Inc()
}

// RecordStateLoad 记录视觉状态加载结果
func (c *Collector) RecordStateLoad(outcome string) {
	c.stateLoadsTotal.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 📤 推送
// =============================================================================

// Push 将当前 Registry 推送到 Pushgateway。url 为空时跳过。
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	c.logger.Debug("metrics pushed", zap.String("url", url), zap.String("job", job))
	return nil
}
