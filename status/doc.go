// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 status 负责把智能体的生命周期状态上报给编排器。

# 概述

每个智能体在 starting、processing、finished、error 四个阶段各上报一次
Event。Reporter 依次投递给所有 Sink，单个 Sink 失败只记录日志，
不会中断智能体运行。

# 核心类型

  - Event：agentnumber、userID、sessionID、status、毫秒时间戳，
    以及平铺到载荷中的附加字段（diagram_url、error、reason 等）。
  - Reporter：多 Sink 扇出。
  - StorageSink：写入 users/{uid}/{sid}/agent{n}/agent_{n}_{status}_{ts}.json。
  - WebsocketSink：基于 coder/websocket 的 JSON 文本帧推送，写失败后
    下一次上报自动重连。
  - CallbackFunc：把函数适配为 Sink。
*/
package status
