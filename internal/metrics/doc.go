// 版权所有 2025 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、推理、会话、缓存与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。每个 Collector
持有独立的 Registry（连同 Go 运行时与进程采集器），经 Gatherer()
挂到 /metrics 路由；实例之间互不干扰。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 推理指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model/status 分组。
  - 会话指标：终态会话计数与时长、流水线阶段耗时、单会话捕获
    帧数、活跃会话 Gauge。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram，
    按 database/operation 分组。

# 装配

InstrumentProvider 与 InstrumentCache 以透明包装的方式为推理
提供方与帧缓存接上指标，在 cmd 装配层套用，业务包对指标无感知。
*/
package metrics
