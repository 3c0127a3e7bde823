// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 VideoFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 VideoFlow 所有 HTTP 端点的请求处理逻辑，
包括分析会话的创建/查询/取消、结果获取、WebSocket 事件流、
报告导出、历史归档与分析预设管理，以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - SessionHandler   — 会话生命周期：创建、状态、取消、结果与事件流
  - ReportHandler    — 报告导出（HTML/Markdown/CSV），含归档回退
  - ArchiveHandler   — 历史会话归档查询
  - SettingsHandler  — 命名分析预设 CRUD
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error +
    timestamp + request_id 回显）
  - ErrorInfo        — 结构化错误信息，含 code、message、provider、
    retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码与响应字节数
  - HealthCheck      — 可插拔健康检查接口（数据库、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数，
    整体编码后带 Content-Length 写出，编码失败降级 500
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式 + 超限 413 +
    拒绝拼接体）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - WebSocket 事件推送：SessionHandler.HandleEvents 升级连接并
    转发 status/progress/result/error 事件，终态后正常关闭
  - 迟到订阅：已终态会话合成单条收尾事件而非空等
  - 分层就绪检查：RegisterCheck 注册硬依赖（失败 → 503），
    RegisterOptionalCheck 注册旁路依赖（失败 → degraded + 200）
*/
package handlers
