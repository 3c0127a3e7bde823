/*
包 report 把已完成会话渲染成可下载的独立报告工件。

# 格式

  - HTML：自包含单页（内联样式、无外部资源），适合浏览器直接打开
  - Markdown：同构的文本版本，适合归档和粘贴
  - CSV：逐帧分析表格，适合导入表格工具做二次统计

# 边界

渲染只读取会话快照，不触发任何推理，也从不回写会话：
渲染失败只影响本次下载请求。会话没有结果时返回
RESULT_NOT_READY，格式参数非法时返回 INVALID_REQUEST。
*/
package report
