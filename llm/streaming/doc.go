// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 实现 OpenAI 兼容 SSE 响应体的增量聚合：把传输层按任意边界
切分的字节块重新拼装为行帧，提取每帧中的增量文本，并同时产出实时回调
与最终累积结果。

# 概述

传输层只被视为一个有序的字节块生产者（ChunkSource），以 io.EOF 表示自然
结束、以其他错误表示硬失败。聚合过程是单 goroutine 的拉取循环，唯一的
挂起点是 ChunkSource.Next；缓冲区与累积结果只被该循环访问，因此无需加锁。

# 处理流水线

  - FrameScanner — 追加字节块，按 '\n' 切出完整行，剥离行尾 '\r'，未终结的尾部
    留待下一块。
  - ClassifyLine — 丢弃空行、':' 注释行（keep-alive）以及非 "data: " 行。
  - DecodePayload — 识别 "[DONE]" 终止哨兵；其余内容按 JSON 解码并读取
    choices.0.delta.content。
  - Aggregator — 累积增量文本，每个非空增量后以完整累积文本同步调用 Observer。

# 解码失败与回填

解码失败的负载行被视为"可能被截断"：原行加上行终止符被放回缓冲区前端，
本块的扫描随即停止。同一内容连续回填的次数受 MaxRebuffers 限制，超过后该行
被丢弃，避免永久畸形行卡死整个流。流结束时剩余的行最后处理一次，不再回填。

# 观察者

  - Observer — 同步回调，必须快速返回，否则会拖慢读取循环。
  - SnapshotStream — 基于有缓冲 channel 的解耦观察者，FIFO 保证快照按到达顺序、
    严格递增地交付；可选 DropPolicyOldest 合并积压的中间快照。
*/
package streaming
