// Package config 提供 VisualFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → VISUALFLOW_* 环境变量 的顺序加载，
// 覆盖日志、对象存储、会话数据库、图像与视觉服务商、批量生成、
// 编排器回调、遥测与指标。
package config
