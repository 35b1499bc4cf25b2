// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 consistency 负责在视频流水线的多次独立生成调用之间维持统一的视觉状态。

# 概述

同一个视频会话中，图示、分镜图片与视频片段由不同的智能体在不同时间生成。
本包维护一份共享的 VisualState（画风、色板、角色、场景、镜头语言、种子），
并基于它合成带有连续性提示的生成 prompt，使各次生成看起来属于同一部作品。

# 核心类型

  - VisualState：会话级可变视觉状态，构造即带默认值，可与 Snapshot 无损互转。
  - StyleExtractor：从参考图（通常是第一张生成的图示）中提取画风属性，
    失败时降级为空属性，永不中断流水线。
  - Manager：持有唯一的 VisualState，提供初始化、角色/场景/种子更新、
    prompt 合成与快照读写，所有方法并发安全。
  - Applier：按会话加载已持久化状态的轻量门面，为逐段生成提供 EnhancePrompt。
  - StateStore：基于对象存储的快照持久化，每个会话一个 JSON 对象。

# 错误语义

  - ExtractionFailure：风格提取阶段的网络/解析失败，仅记录日志。
  - StateLoadFailure：快照缺失或损坏，Applier 降级为默认状态。
  - MalformedStateError：显式加载时快照结构校验失败，直接返回给调用方。

# 使用方式

	mgr := consistency.NewManager(logger)
	mgr.InitializeFromSession("Water Cycle", "8", "space")
	mgr.DefineCharacter("Drippy", "a blue water droplet with a smiling face")
	prompt := mgr.GenerateConsistentPrompt("Drippy explains evaporation", consistency.SegmentConcept, false, nil)
*/
package consistency
