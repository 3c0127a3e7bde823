// 包 capture 按计划执行截帧:时间点寻址截图、事件轮询捕获、
// 幻灯片换页采样,并对产出帧做按策略的尺寸与压缩优化。
// 执行器永不整体失败,能采多少帧就返回多少帧。
package capture
