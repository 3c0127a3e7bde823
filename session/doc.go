// Package session 实现视频分析会话的编排与生命周期管理。
//
// orchestrator 驱动单个会话顺序走过导航、播放器检测、帧捕获、
// 批量分析与合成各阶段,每次状态迁移都广播 status 与 progress
// 事件,进入终态时发布结果或错误事件。Manager 维护会话注册表,
// 对外提供 Start / GetStatus / GetResult / Cancel,并负责终态
// 会话的归档与保留期清理。
//
// 并发模型:每个会话独占一个浏览器导航器,编排器保证它在所有
// 退出路径(完成、失败、取消、超时)上恰好释放一次;会话之间
// 仅共享帧分析缓存。进度值在会话生命周期内单调不减。
package session
