// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 image 提供统一的图像生成服务抽象，屏蔽 Replicate 与 Google Gemini
在 API 协议、参数格式和响应结构上的差异。

# 概述

视频流水线中的图示智能体与批量分镜智能体都通过 Provider 接口生成图像。
Replicate 返回图像 URL，Gemini 返回内联 base64 数据；调用方统一通过
Bytes 取得原始字节后写入对象存储。

# 核心接口

  - Provider：Generate 与 Name 两个方法。
  - GenerateRequest / GenerateResponse：生成请求与响应模型，
    支持 prompt、负向 prompt、尺寸/宽高比、质量、种子等参数。
  - ImageData / ImageUsage：图像数据与用量（含单张成本）。
  - APIError：服务商返回的非 2xx 响应。

# 主要能力

  - ReplicateProvider：flux-1.1-pro、flux-pro、flux-dev、flux-schnell、sdxl，
    使用 Prefer: wait 同步等待，未完成时按 urls.get 轮询。
  - GeminiProvider：generateContent + responseModalities ["IMAGE"]。
  - 模型表：LookupModel 返回模型引用、输入族与单张成本，BuildInput
    按 Flux / SDXL 输入族生成请求参数。
  - 下载与扩展名：Download、Bytes、ExtensionForMIME。
*/
package image
