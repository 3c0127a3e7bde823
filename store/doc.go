// 版权所有 2025 VideoFlow Authors
//
// Package store 提供会话归档与分析预设的持久层。
//
// # 归档
//
// 终态会话(completed/failed/cancelled)由编排器尽力写入
// ArchivedSession:完整的结果 JSON 快照加上便于查询的扁平列
// (状态、策略、帧数、耗时)。归档失败只记日志,绝不影响会话收尾。
//
// # 预设
//
// AnalysisSettings 保存命名的会话参数组合(并发、批间延迟、帧数
// 上限、模型),可标记一个默认预设;默认位在保存时自动互斥。
//
// # 驱动
//
// Open 按配置选择方言:sqlite(glebarez 纯 Go 实现,内嵌部署)、
// postgres、mysql。表结构既可以 AutoMigrate,也可以用
// internal/migration 的版本化迁移管理。
package store
