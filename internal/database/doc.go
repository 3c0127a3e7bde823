// 版权所有 2025 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，支持健康检查、
统计信息采集与事务重试。归档库(store)的连接由本包托管。

# 概述

本包通过 PoolManager 封装 GORM 与 database/sql 的连接池配置，
统一管理连接生命周期、空闲回收与最大连接数限制。后台健康检查
定时探活，异常时通过 zap 日志输出诊断信息，并把连接数推送到
Prometheus 采集器。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔；零值字段按
    DefaultPoolConfig 补齐。
  - TransactionFunc：事务回调函数类型。
  - ErrPoolClosed：对已关闭连接池发起操作的哨兵错误。

# 主要能力

  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 精细控制。
  - 健康检查：后台定时 PingContext 探活，输出连接数与空闲数，
    两次检查之间有连接排队时告警提示池饱和；Close 立即停掉循环。
  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 对死锁、序列化失败、sqlite 写锁等可重试
    错误做带抖动的指数退避重试，退避中随 context 取消。
  - 统计采集：挂接 metrics.Collector 后 PublishStats 同步更新
    Prometheus 连接数仪表，事务耗时进入查询直方图。
*/
package database
