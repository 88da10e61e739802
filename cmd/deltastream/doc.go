// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 deltastream 命令行程序入口。

# 概述

cmd/deltastream 把 OpenAI 兼容的 SSE 响应实时聚合为文本：stream 子命令
向上游发起请求并边收边打印，replay 子命令重放录制下来的响应体（可用
--chunk 模拟任意的传输切块）。流式文本写到标准输出，日志写到标准错误。

# 主要能力

  - 子命令：stream、replay、version、help
  - 流水线：聚合、终端打印与可选的 Prometheus 端点在同一个 errgroup 中运行，
    打印端通过 SnapshotStream 与读循环解耦
  - 信号：SIGINT/SIGTERM 取消上下文，已收到的部分文本保留，退出码 130
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
