// 版权所有 2024 VideoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 browser 提供视频页面的浏览器自动化与播放器控制能力。

# 概述

browser 驱动 Headless Chrome 打开视频页面,定位播放器,按
百分比寻址并截取画面。在原子操作之上,它借助视觉模型提供
三种自然语言能力:判断描述的视觉事件是否出现、判断幻灯片
是否换页、执行"关闭 Cookie 弹窗"这类无法用选择器表达的指令。

# 核心接口

  - Navigator:采集流水线对浏览器的全部依赖,定义导航、
    播放器检测、寻址、稳定等待、截图与自然语言操作
  - Controller:底层浏览器原子操作接口,提供 Navigate /
    Screenshot / ElementScreenshot / Click / Evaluate
  - PlayerHandle:页面上被选中视频元素的标识

# 内置实现

Driver 基于 chromedp 库实现 Controller,独占一个 Headless
Chrome 实例,支持自定义可执行路径、UserAgent、代理与截图
质量。Agent 组合 Controller 与 vision.Provider 实现完整的
Navigator;NewChromeAgent 一步到位地启动浏览器并返回就绪
的 Agent。

# 使用约束

一个 Agent 在会话生命周期内被独占持有,结束后必须 Close;
Close 可安全多次调用,保证浏览器资源恰好释放一次。所有
方法都是尽力而为,重试与降级策略由调用方决定。
*/
package browser
