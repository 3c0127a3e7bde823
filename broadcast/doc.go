/*
包 broadcast 提供按会话 ID 分组的进度事件集线器。

# 概述

编排器在每次状态迁移时向集线器发布 status / progress 事件，
终态发布 result 或 error 事件；任意数量的订阅者按会话 ID 订阅。
投递是尽力而为的：带缓冲、永不阻塞发布方，缓冲打满或已关闭的
订阅者被直接摘除（慢消费者问题不外溢）。一个订阅者的故障不影响
其他订阅者，也不影响流水线本身。

# 订阅模型

Subscribe 返回带独立缓冲通道的 Subscriber；消费方从 Events()
读取，用完调用 Unsubscribe。WSForwarder 把订阅者适配到 WebSocket
连接（写操作互斥，因为 WebSocket 不支持并发写）。
*/
package broadcast
