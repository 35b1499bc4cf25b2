// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 diagram 实现视频流水线中的第三个智能体：为课程会话生成图示，
并以该图示为参考图建立会话的视觉一致性状态。

# 概述

Agent 读取会话（主题、已确认事实、儿童年龄与兴趣），优先使用
Replicate Flux 1.1 Pro 以无文字的叙事场景提示词生成插图，未配置时
改用 Gemini 以信息图提示词生成。图像上传至
users/{uid}/{sid}/agent3/diagram.{ext}，并生成 24 小时有效的下载链接。

# 处理流程

  - 上报 starting 与 processing 状态。
  - 生成、下载并上传图示，写入 agent_3_data.json。
  - 配置了状态存储时，通过 consistency.Manager 从图示提取风格并持久化。
  - 上报 finished（携带 diagram_url）；任何失败上报 error（携带 error 与 reason）。

# 提示词

  - BuildNarrativePrompt：最多考虑 4 条事实、取 3 个场景元素，
    附加绘本风格列表与年龄/兴趣修饰，并声明无文字覆盖。
  - BuildInfographicPrompt：列出全部事实与版式要求的信息图提示词。
*/
package diagram
