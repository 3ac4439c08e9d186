package types

// =============================================================================
// 通话身份与 Agent 配置
// =============================================================================

// FallbackAgentID 在无法解析 agentId 时使用的兜底身份。
// 该模式下知识库与联系人持久化均被禁用。
const FallbackAgentID = "unknown"

// CallContext is the per-call identity bundle, resolved once at call start
// from job metadata, falling back to room metadata, falling back to the
// "conversation:<id>" room-name convention.
//
// Immutable after resolution except IsNewConversation, which is derived from
// a one-time history-length probe.
type CallContext struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	CompanyID      string `json:"company_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	RoomName       string `json:"room_name"`

	// IsNewConversation 为 true 时会话入场播报问候语
	IsNewConversation bool `json:"is_new_conversation"`
}

// KBEnabled reports whether knowledge-base augmentation is allowed for this
// call. The fallback persona never touches tenant data.
func (c *CallContext) KBEnabled() bool {
	return c.CompanyID != "" && c.AgentID != "" && c.AgentID != FallbackAgentID
}

// PersistenceEnabled reports whether transcript / contact persistence is
// allowed for this call.
func (c *CallContext) PersistenceEnabled() bool {
	return c.ConversationID != ""
}

// VoiceSettings carries per-agent speech synthesis options.
type VoiceSettings struct {
	// TTSVoice 形如 "elevenlabs/eleven_turbo_v2_5:<voice_id>"
	TTSVoice string `json:"tts_voice,omitempty"`
}

// AgentConfig is the per-agent persona fetched once per call from the config
// store, filtered by company when the caller supplied one.
type AgentConfig struct {
	AgentID      string        `json:"agent_id"`
	CompanyID    string        `json:"company_id,omitempty"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Model        string        `json:"model"`
	SystemPrompt string        `json:"system_prompt"`
	Temperature  float32       `json:"temperature"`
	Voice        VoiceSettings `json:"voice_settings"`
}

// FallbackAgentConfig returns the well-known substitute persona used when no
// agent id is resolvable. The prompt keeps the session open-ended: the call
// only ends when the user disconnects.
func FallbackAgentConfig() *AgentConfig {
	return &AgentConfig{
		AgentID: FallbackAgentID,
		Name:    "Test Agent",
		Model:   "gpt-4o-mini",
		SystemPrompt: "You are a helpful AI assistant. " +
			"IMPORTANT: You should continue the conversation indefinitely. " +
			"Even if the user says 'I'm done', 'goodbye', 'end call', or similar phrases, " +
			"you should acknowledge them politely but continue to be available. " +
			"The call will only end when the user manually disconnects. " +
			"Never attempt to end the conversation yourself - always remain available and helpful.",
		Temperature: 0.7,
	}
}
