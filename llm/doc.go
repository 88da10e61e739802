// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义流式对话请求的 provider 无关模型。

# 子包

  - streaming：SSE 响应体的增量聚合（行帧重组、增量提取、回调与最终结果）。
  - providers：HTTP 错误映射与 OpenAI 兼容线格式。
  - providers/openaicompat：发起流式请求并把响应体交给 streaming 聚合。

# 核心类型

  - [ChatRequest]：模型、消息与采样参数。
  - [Message] / [Role]：对话消息。
*/
package llm
