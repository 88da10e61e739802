// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 deltastream 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、streaming、
providers 等上层模块提供统一的错误契约与 context 传播工具。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - ErrStreamTransport / ErrStreamMissing — 流式读取阶段的传输错误码

# 主要能力

  - Context 传播：WithRunID / WithProvider
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
