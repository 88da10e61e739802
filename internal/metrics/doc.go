// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的流式聚合指标采集能力，覆盖
聚合运行与上游 HTTP 两个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。每个 Collector 持有
独立的 Registry（promauto.With），多个实例之间不会发生重复注册；
Handler 通过 promhttp 暴露抓取端点。

# 核心类型

  - Collector：指标收集器，实现 streaming.Recorder，可直接传给
    streaming.WithMetrics。

# 主要能力

  - 聚合指标：运行总数与耗时（按 outcome 分组）、字节块数量与大小、
    增量数量、回填次数、丢弃行数（按 reason 分组）、活跃流 Gauge。
  - 上游指标：流式请求总数（按 provider/status 分组，状态码归类为
    2xx/3xx/4xx/5xx）、到达响应头的耗时。
*/
package metrics
