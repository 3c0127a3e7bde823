// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 VideoFlow 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
//
// 启用时注册 W3C trace context/baggage 传播器，把 SDK 内部错误
// 改道到结构化日志，resource 支持 OTEL_RESOURCE_ATTRIBUTES 追加
// 部署标签。
package telemetry
