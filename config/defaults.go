// =============================================================================
// 📦 DeltaStream 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 快照缓冲满时的策略取值
const (
	DropPolicyBlock  = "block"
	DropPolicyOldest = "drop_oldest"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Provider:  DefaultProviderConfig(),
		Stream:    DefaultStreamConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultProviderConfig 返回默认上游配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:           "openai",
		BaseURL:        "https://api.openai.com",
		APIKey:         "",
		Model:          "gpt-4o-mini",
		EndpointPath:   "/v1/chat/completions",
		HeaderTimeout:  30 * time.Second,
		ReadBufferSize: 32 * 1024,
	}
}

// DefaultStreamConfig 返回默认聚合配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		DeltaPath:      "choices.0.delta.content",
		MaxRebuffers:   3,
		SnapshotBuffer: 64,
		DropPolicy:     DropPolicyBlock,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "deltastream",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "deltastream",
	}
}
