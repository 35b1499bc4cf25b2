// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 batch 为视频脚本的四个段落（hook、concept、process、conclusion）
并行生成分镜图像。

# 概述

Generator 为每个段落生成 ImagesPerPart 张图像。提示词由段落的视觉指引、
关键概念与按序号选择的光照变体组成，并在配置 PromptEnhancer 时
通过会话的视觉一致性状态增强，种子取自状态，缺省为 42。

# 并发模型

  - 所有提示词先按段落顺序串行构建，增强器是有状态的。
  - 生成任务通过 errgroup 扇出，SetLimit 限制并发，rate.Limiter 控制调用间隔。
  - 单个任务失败只记录错误，不取消其他任务；至少生成一张图像即视为成功。

# 输出

Output 按段落汇总 MicroScenes，附带总成本、失败数量与错误列表。
配置对象存储时，图像会复制到 users/{uid}/{sid}/micro_scenes/ 下并返回签名链接。
*/
package batch
