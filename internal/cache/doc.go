// 版权所有 2024 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理进程内共享的 Redis 连接，提供连接池、健康检查、
带 TTL 的 JSON 序列化读写与统计信息采集。

# 概述

本包封装 go-redis 客户端，是帧分析缓存远端层的地基：framecache
在它之上做多级缓存语义（键派生、本地 LRU、回填），本包只负责
连接生命周期与类型化读写。cmd 在装配时创建 Manager，把 Ping
注册进健康检查，并在停机时 Close。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete/DeleteByPrefix 基础操作与
    GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL
    与健康检查间隔等参数。
  - Stats：客户端侧连接池统计（命中、超时、总连接与空闲连接）。

# 主要能力

  - 键值读写：字符串与 JSON 两种模式的缓存存取，TTL 缺省可配；
    JSON 值按字节直读直写，大体量帧条目不经字符串中转。
  - 前缀清理：DeleteByPrefix 以 SCAN 分批推进，供缓存整体清空。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警；
    取连超时在增长时发饱和告警，关闭时循环立即退出。
  - 锁纪律：关闭检查在锁内完成，网络往返不占锁，Close 不会被
    慢命令拖住。
  - 优雅关闭：Close 记录连接池终态并安全释放底层连接。
  - 错误语义：ErrCacheMiss 与 ErrClosed 两个哨兵错误,均可用
    errors.Is 判断;IsCacheMiss 是前者的便捷形式。
*/
package cache
