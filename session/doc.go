// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 读写流水线共享的 video_session 表。

# 概述

会话记录由上游智能体写入，包含主题、已确认事实、生成脚本、学习目标
以及孩子的年龄与兴趣。图示智能体据此构建提示词并初始化视觉一致性状态。

# 核心类型

  - VideoSession：video_session 表的 GORM 模型。
  - Fact / Facts：confirmed_facts 列的 JSON 文本，条目可以是字符串或
    {concept, details} 对象。
  - Repository：Find 按会话与用户查询（不存在时返回 ErrSessionNotFound），
    Save 以 upsert 写入，UpdateScript 更新脚本列。
*/
package session
