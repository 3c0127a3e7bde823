// Package config 提供 VideoFlow 的统一配置加载：
// 默认值 → YAML 文件 → VIDEOFLOW_* 环境变量逐级覆盖，
// 并附带配置校验与数据库 DSN 构造。
//
// YAML 解析为严格模式（未知键报错），文件内容支持 ${VAR}
// 环境变量引用，显式指定但不存在的配置文件视为错误。
package config
