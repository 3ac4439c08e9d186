package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestResolveTTSVoice(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		elevenKey  string
		want       string
	}{
		{"configured voice wins", "elevenlabs/custom:v1", "el_key", "elevenlabs/custom:v1"},
		{"elevenlabs default with key", "", "el_key", ElevenLabsDefaultVoice},
		{"cartesia fallback without key", "", "", CartesiaFallbackVoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveTTSVoice(tt.configured, tt.elevenKey))
		})
	}
}

func TestNewComponentsDefaults(t *testing.T) {
	c := NewComponents(ComponentConfig{}, "")
	assert.Equal(t, DefaultSTTModel, c.STT)
	assert.Equal(t, DefaultLLMModel, c.LLM)
	assert.Equal(t, DefaultVADModel, c.VAD)
	assert.Equal(t, DefaultTurnDetector, c.TurnDetector)
	assert.Equal(t, CartesiaFallbackVoice, c.TTS)
}

func TestNewComponentsOverrides(t *testing.T) {
	c := NewComponents(ComponentConfig{
		STTModel:       "deepgram/nova-3",
		LLMModel:       "openai/gpt-4o",
		ElevenLabsKey:  "el_key",
		DisableTurnDet: true,
	}, "")
	assert.Equal(t, "deepgram/nova-3", c.STT)
	assert.Equal(t, "openai/gpt-4o", c.LLM)
	assert.Equal(t, ElevenLabsDefaultVoice, c.TTS)
	assert.Empty(t, c.TurnDetector)
}

func TestWithoutTurnDetector(t *testing.T) {
	c := NewComponents(ComponentConfig{}, "")
	out := c.WithoutTurnDetector(zap.NewNop())
	assert.Empty(t, out.TurnDetector)
	assert.Equal(t, DefaultTurnDetector, c.TurnDetector, "receiver unchanged")
}
