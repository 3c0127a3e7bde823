// 版权所有 2024 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 VideoFlow 服务端程序入口。

# 概述

cmd/videoflow 是 VideoFlow 的可执行入口，提供视频分析会话 HTTP API、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 核心类型

  - Server           — 主服务器，组装会话流水线并管理 HTTP、Metrics 双端口
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - keyedLimiter      — 按 key 维护令牌桶，IP 限流与租户限流共用

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 流水线组装：视觉客户端 → 浏览器工厂 → 会话管理器 → Handlers，
    数据库与 Redis 不可用时降级运行（无归档 / 仅本地缓存）
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing（按配置）、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key）、JWTAuth + TenantRateLimiter（按配置）；
    日志、指标、追踪共用 handlers.ResponseWriter 一种响应包装
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 排空会话 → 关闭 Metrics →
    关闭缓存与数据库 → 关闭遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
