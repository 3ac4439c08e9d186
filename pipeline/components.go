package pipeline

import (
	"go.uber.org/zap"
)

// ===== 📦 组件选型 =====

// Built-in component defaults. Overridable per deployment via config.
const (
	DefaultSTTModel = "assemblyai/universal-streaming"
	DefaultLLMModel = "openai/gpt-4.1-mini"
	DefaultVADModel = "silero"

	// DefaultTurnDetector 多语种回合检测模型，可选组件
	DefaultTurnDetector = "multilingual"

	// ElevenLabsDefaultVoice 在配置了 ElevenLabs 密钥时使用
	ElevenLabsDefaultVoice = "elevenlabs/eleven_turbo_v2_5:21m00Tcm4TlvDq8ikWAM"

	// CartesiaFallbackVoice 无 ElevenLabs 密钥时的兜底音色
	CartesiaFallbackVoice = "cartesia/sonic-3:9626c31c-bec5-4cca-baa8-f8ba9e84c8bc"
)

// Components selects the model for each pipeline role. TurnDetector may be
// empty: the pipeline then falls back to VAD-only endpointing.
type Components struct {
	STT          string `json:"stt"`
	LLM          string `json:"llm"`
	TTS          string `json:"tts"`
	VAD          string `json:"vad"`
	TurnDetector string `json:"turn_detector,omitempty"`
}

// ComponentConfig 部署级组件覆盖
type ComponentConfig struct {
	STTModel       string
	LLMModel       string
	ElevenLabsKey  string
	CartesiaKey    string
	DisableTurnDet bool
}

// NewComponents resolves the component set for a call. ttsVoice is the
// agent-configured voice, empty when the agent has none.
func NewComponents(cfg ComponentConfig, ttsVoice string) Components {
	c := Components{
		STT: cfg.STTModel,
		LLM: cfg.LLMModel,
		TTS: ResolveTTSVoice(ttsVoice, cfg.ElevenLabsKey),
		VAD: DefaultVADModel,
	}
	if c.STT == "" {
		c.STT = DefaultSTTModel
	}
	if c.LLM == "" {
		c.LLM = DefaultLLMModel
	}
	if !cfg.DisableTurnDet {
		c.TurnDetector = DefaultTurnDetector
	}
	return c
}

// ResolveTTSVoice picks the synthesis voice: the agent's configured voice
// wins, then the ElevenLabs default when its key is present, then the
// Cartesia fallback.
func ResolveTTSVoice(configured, elevenLabsKey string) string {
	if configured != "" {
		return configured
	}
	if elevenLabsKey != "" {
		return ElevenLabsDefaultVoice
	}
	return CartesiaFallbackVoice
}

// WithoutTurnDetector returns a copy with the optional turn detector
// dropped. Used when its initialization fails mid-start.
func (c Components) WithoutTurnDetector(logger *zap.Logger) Components {
	if c.TurnDetector != "" && logger != nil {
		logger.Warn("turn detector unavailable, falling back to VAD-only endpointing",
			zap.String("turn_detector", c.TurnDetector))
	}
	c.TurnDetector = ""
	return c
}
