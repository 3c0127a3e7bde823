// Package vision 封装视觉推理端点适配器。
//
// Provider 接口是唯一边界：一次调用 = 一段提示词 + 可选图像 → 模型文本。
// Client 实现对接任意 OpenAI 兼容端点，图像以 base64 data URL 内联，
// 上游错误映射到统一的 types.Error 错误码（鉴权 / 限流 / 上游故障可区分），
// 本层不做重试，失败策略由调用方决定。
package vision
