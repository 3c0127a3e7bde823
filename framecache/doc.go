// 版权所有 2024 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 framecache 提供 (帧, 提示词) → 帧分析结果 的进程级缓存。

# 概述

缓存键由帧图像内容指纹与提示词哈希构成：相同画面配相同问题，
无论来自哪个会话，都命中同一条目，从而避免重复的视觉推理调用。
缓存分两级：本地 LRU（带 TTL，双向链表 O(1) 淘汰）与可选的
Redis 二级存储，Redis 命中后自动回填本地并累加命中计数。

# 核心类型

  - Cache      — 缓存接口（Get / Set / Delete / Clear / Key）
  - MultiLevel — 默认实现，本地 LRU + internal/cache 连接管理器
  - Entry      — 缓存条目，含分析结果、模型名、TTL 与命中计数
  - LRUCache   — 本地层实现，容量满时淘汰最久未使用条目

# 注意事项

Clear 会清空本地层并按键前缀扫描删除 Redis 层，供运维端点使用；
单条失效用 Delete。缓存永不参与失败帧的存储——只有成功的分析
结果才会入缓存。
*/
package framecache
