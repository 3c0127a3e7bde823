// Copyright 2025 VideoFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package testutil 提供 VideoFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏；TestContext 跟随 go test -timeout 收紧
  - 异步辅助: WaitFor，超时轮询等待条件满足
  - 事件流辅助: WaitForEventType，用于会话进度事件的订阅测试

# 子包

  - testutil/mocks: Mock 实现，包括 MockNavigator（浏览器自动化）、
    MockVisionProvider（视觉推理端点），均支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供预置分析请求、
    播放器元数据、采集计划、帧序列与会话结果等样例

# 使用示例

	ctx := testutil.TestContext(t)
	nav := mocks.NewMockNavigator().WithDuration(600)
	provider := mocks.NewMockVisionProvider().WithResponse("a slide about channels")
	ok := testutil.WaitFor(func() bool { return done() }, 5*time.Second)
*/
package testutil
