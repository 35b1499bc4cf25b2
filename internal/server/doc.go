// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供对象下载服务的 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。配置了证书时使用 tlsutil 的加固 TLS 配置
包装监听器。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小、
    优雅关闭超时与可选 TLS 配置；FromServerConfig 从配置文件转换。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM 或 ctx 结束。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
