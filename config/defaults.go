package config

import "time"

// =============================================================================
// 🧩 默认配置
// =============================================================================

// DefaultConfig 返回完整的默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Media:     DefaultMediaConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		LLM:       DefaultLLMConfig(),
		KB:        DefaultKBConfig(),
		Chat:      DefaultChatConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        4003,
		MetricsPort:     9091,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       20,
		RateBurst:       40,
	}
}

// DefaultMediaConfig 返回默认媒体服务器配置
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		TokenTTL: 6 * time.Hour,
		Timeout:  5 * time.Second,
	}
}

// DefaultPipelineConfig 返回默认语音管道配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		STT:                 "assemblyai/universal-streaming",
		LLM:                 "openai/gpt-4.1-mini",
		TurnDetector:        true,
		GreetingSettleDelay: 500 * time.Millisecond,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "voiceflow",
		Name:            "voiceflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DispatchTTL: 30 * time.Second,
		SessionTTL:  4 * time.Hour,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:         "https://api.openai.com",
		ExtractionModel: "gpt-4o-mini",
		Timeout:         10 * time.Second,
	}
}

// DefaultKBConfig 返回默认知识库配置
func DefaultKBConfig() KBConfig {
	return KBConfig{
		Timeout:            5 * time.Second,
		TopK:               5,
		ContextTokenBudget: 2048,
	}
}

// DefaultChatConfig 返回默认会话服务配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Timeout: 5 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voiceflow",
		SampleRate:   0.1,
	}
}
