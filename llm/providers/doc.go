// Package providers 提供 OpenAI 兼容上游的公共部分：HTTP 错误到
// types.Error 的映射、错误响应消息提取以及请求线格式。
//
// 具体的流式客户端见 openaicompat 子包。
package providers
