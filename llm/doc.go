/*
包 llm 定义 Alter 调用端口（Invoker）及其两个 HTTP 后端实现。

# 概述

Invoker 是编排器与推理后端之间的纯能力边界：text in, text out, 可失败。
重试、退避与并发控制全部属于调用方；本包只负责单次调用的传输与错误归一。

# 实现

  - OllamaInvoker：本地 Ollama /api/generate，非流式。
  - OpenAIInvoker：任意 OpenAI 兼容 /v1/chat/completions 端点。
  - RateLimitedInvoker：golang.org/x/time/rate 令牌桶包装器。

# 错误语义

传输失败归一为 types.Error 三类调用错误码：INVOCATION_TIMEOUT（单次调用
超时，可重试）、BACKEND_UNAVAILABLE（网络/5xx/429，按状态决定可重试性）、
MALFORMED_RESPONSE（响应不可解析或为空，可重试）。父 context 的取消原样
透传，供状态机识别运行级中止。
*/
package llm
