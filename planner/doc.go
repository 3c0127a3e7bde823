/*
包 planner 根据视频元数据与用户提示词生成截帧计划。

# 概述

planner 是纯计算组件：不访问网络、不产生错误。它先用关键词家族
对提示词分类（summary / timeline / code_focused / slide_transitions /
educational / comprehensive），再按策略对应的固定公式在视频时长上
铺设截帧点。提示词无法分类或播放器未上报时长时，退化为
start / middle / end 三点 fallback 计划，保证任何输入都能得到
可执行的计划。

# 核心类型

  - Planner：计划生成器，Plan(metadata, prompt) 返回 CapturePlan
  - Classify：提示词 → CaptureStrategy 的关键词分类函数

# 策略公式

  - summary：5 点，{0%, 20%, 50%, 80%, max(95%, 时长-30s)}
  - timeline：每 max(30s, 时长/10) 一点，隐式上限约 10 点
  - code_focused：2 个事件点（编辑器可见 / 终端输出）与
    25/50/75% 三个时间点交错
  - slide_transitions：单个重复事件点，由 executor 动态展开
  - educational：0/15/35/55/75/90% 六点，附教学阶段标注
  - comprehensive：6 点均匀分布
  - fallback：3 点（起始 / 中段 / 接近结尾）

固定点数使推理调用量与视频长度解耦，是系统的成本控制手段。
*/
package planner
