/*
包 synthesis 把多帧分析聚合成对用户请求的单一回答。

# 概述

合成是流水线的最后一个推理阶段：过滤掉带错误的帧分析，
按提示词关键词家族判定合成类型（summary / extraction / evaluation /
timeline / report / study_notes / comprehensive），把全部有效分析
按帧号标注拼进一个提示词，只调用一次推理端点。提示词用 tiktoken
做 token 预算，超出预算时优先裁掉最早的帧段落。

# 失败语义

仅当输入中每一条帧分析都带错误时，Synthesize 返回
SYNTHESIS_NO_INPUT；只要有一帧有效就继续合成。推理调用本身的
失败原样向上传播，由编排器记录为会话失败。

# 后处理

对合成文本做轻量字符串抽取（不再推理）：
KeyThemes 取 "Theme:"/"Topic:" 标记行（≤3），
ActionableInsights 取含建议动词的行（≤3），
ExecutiveSummary 取含总结信号词的句子拼接。
抽取结果为空是合法输出，调用方应视为"未发现"而非错误。
*/
package synthesis
