// Package config 提供 DeltaStream 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量名由前缀（默认 DELTASTREAM）加各层 env 标签拼接而成，
// 例如 DELTASTREAM_PROVIDER_BASE_URL。
package config
