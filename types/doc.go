// Copyright (c) VideoFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 VideoFlow 流水线的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 session、planner、
capture、analysis、synthesis、api 等上层模块提供统一的类型契约。
所有跨包共享的结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Session / SessionStatus — 分析会话及其状态机（initializing →
    navigating → detecting_player → capturing → analyzing →
    synthesizing → completed，任意非终态可进入 failed，
    cancelled 由取消请求触发）
  - CapturePlan / CapturePoint — 捕获计划与捕获点（时间戳点或事件点）
  - Frame               — 单帧截图（编号、时间戳、图像字节、上下文标签）
  - FrameAnalysis       — 单帧推理结果（文本与错误互斥）
  - SynthesizedResult   — 综合结果（类型、主题、可执行建议、摘要）
  - VideoMetadata       — 播放器元数据（时长、当前位置、播放状态）
  - Error / ErrorCode   — 结构化错误体系，含 HTTP 状态码、Retryable 标记

# 主要能力

  - 状态机校验：SessionStatus.CanTransitionTo / IsTerminal
  - Context 传播：WithSessionID / WithTenantID / WithUserID
  - 错误工具链：AsError / IsCode / IsRetryable / GetErrorCode
*/
package types
