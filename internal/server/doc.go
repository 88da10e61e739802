// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理命令行运行期间的辅助 HTTP 服务（Prometheus 抓取端点）。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown 等生命周期方法。
  - Config：监听地址、读请求头/写/空闲超时与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 随 ctx 结束而优雅关闭，可直接放进 errgroup。
  - 错误传播：Errors() 返回异步错误通道。
  - 状态查询：Addr 在启动后返回实际绑定地址（支持 ":0"）。
*/
package server
