// 版权所有 2024 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。API 服务与指标服务各持有一个 Manager，
内置 SIGINT/SIGTERM 信号处理，停机时在途的分析请求在优雅
关闭超时内排空，排空超时则强制关闭，不让卡死的请求拖住进程。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/StartTLS/Shutdown/WaitForShutdown
    等生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时；零值字段在 NewManager 中
    按默认值补齐，避免 0 超时把优雅关闭退化成直接掐线。

# 主要能力

  - 非阻塞启动：Start/StartTLS 在后台 goroutine 中运行服务，
    主线程不阻塞。重复启动返回 ErrAlreadyStarted，关闭后启动
    返回 ErrClosed，均可用 errors.Is 判定。
  - TLS 支持：StartTLS 在监听前加载证书，路径或密钥有问题
    同步报错；协商下限为 TLS 1.2。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空，超时后
    强制关闭全部连接。已升级为事件流的连接不参与排空，由
    会话层在关闭序列中单独收口。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM，收到信号后
    自动触发优雅关闭流程。
  - 错误传播：Errors() 返回异步错误通道，供调用方监控服务异常。
  - 状态查询：IsRunning/Addr/BoundAddr/ActiveConns 提供运行状态、
    配置地址、实际绑定地址与在管连接数，":0" 随机端口场景用
    BoundAddr 取真实端口。

写超时不作用于事件流：WebSocket 升级接管连接后由会话广播层
自行管理生命周期。
*/
package server
