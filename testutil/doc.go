// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 deltastream 测试的共享工具和辅助函数。

# 概述

testutil 为流式聚合、传输适配等包的单元测试与属性测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。本包不依赖 llm/streaming，
因此 streaming 自身的包内测试也可以使用。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - SSE 构造: DeltaLine / DoneLine / CommentLine / SSEBody，按线上格式生成
    "data: " 帧
  - 分块工具: SplitAt / SplitEvery，按任意字节边界切分响应体，
    用于验证分块边界无关性
  - 观察者记录: Recorder 并发安全地记录每次回调收到的累积文本
  - 异步断言: AssertEventuallyTrue / WaitForChannel
  - 慢速读取: BlockingReader 模拟停滞的连接，Close 后立即返回错误

# 使用示例

	body := testutil.SSEBody(testutil.DeltaLine("Hel"), testutil.DeltaLine("lo"), testutil.DoneLine())
	chunks := testutil.SplitEvery([]byte(body), 3)
*/
package testutil
