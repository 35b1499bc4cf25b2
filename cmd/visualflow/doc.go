// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VisualFlow 命令行程序入口。

# 概述

cmd/visualflow 是教育视频流水线中视觉一致性组件的可执行入口，
负责从 YAML 配置与环境变量装配对象存储、会话数据库、状态上报、
遥测与指标，然后运行图示智能体、批量分镜生成或对象下载服务。

# 核心类型

  - app：一次运行共享的组件集合（存储、会话仓库、状态存储、
    上报器、指标收集器、图像服务商、风格提取器）
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：diagram、batch、enhance、serve、migrate、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger
  - 指标：一次性命令结束时推送到 Pushgateway，serve 暴露 /metrics
  - 优雅关闭：SIGINT/SIGTERM 取消运行中的生成并关闭 HTTP 服务
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
