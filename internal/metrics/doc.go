// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的视频流水线指标采集能力，覆盖
图像生成、视觉一致性与智能体运行三大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。指标注册在
Collector 自有的 Registry 上，命令行一次性任务结束时可通过 Push
推送到 Pushgateway。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，实现 consistency.Recorder 接口，
    同时提供图像生成与智能体运行的记录方法。

# 主要能力

  - 图像生成指标：调用总数、耗时、估算成本，按 provider/model 分组。
  - 视觉一致性指标：风格提取结果、提示词增强次数、状态加载结果。
  - Agent 指标：运行总数与耗时，按 agent/status 分组。
  - Pushgateway 推送：Push(ctx, url, job)。
*/
package metrics
