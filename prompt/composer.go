// Package prompt composes voice-agent instructions. Composition is a pure
// function over its inputs so the same call state always yields the same
// prompt text.
package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/BaSui01/voiceflow/types"
	"github.com/pkoukk/tiktoken-go"
)

// ===== 📦 提示词拼装 =====

// Input carries everything the composer needs for one prompt build.
type Input struct {
	// Agent 当前代理配置
	Agent *types.AgentConfig

	// KBContext retrieved knowledge snippets, empty when absent.
	KBContext string

	// IsNewConversation selects the greeting section: a fresh conversation
	// gets a self-introduction directive, a continued one gets a no-re-greet
	// directive. Exactly one of the two appears.
	IsNewConversation bool

	// KBTokenBudget clamps the KB block. Zero means no clamp.
	KBTokenBudget int
}

// Composer builds system instructions and greeting directives.
type Composer struct {
	encoding *tiktoken.Tiktoken
}

// NewComposer 创建拼装器，编码器加载失败时按字符近似裁剪
func NewComposer() *Composer {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Composer{encoding: enc}
}

// Compose returns the full system instructions for a session. Section order is
// fixed: identity, base prompt, knowledge context, multilingual guidance,
// greeting continuity, contact-ask timing, spoken style.
func (c *Composer) Compose(in Input) string {
	agent := in.Agent
	if agent == nil {
		agent = types.FallbackAgentConfig()
	}

	var b strings.Builder
	if desc := strings.TrimSpace(agent.Description); desc != "" {
		fmt.Fprintf(&b, "You are %s, %s.\n\n", agent.Name,
			lowerFirst(strings.TrimSuffix(desc, ".")))
	} else {
		fmt.Fprintf(&b, "You are %s, a voice assistant.\n\n", agent.Name)
	}

	if base := strings.TrimSpace(agent.SystemPrompt); base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}

	if kb := c.clampKB(in.KBContext, in.KBTokenBudget); kb != "" {
		b.WriteString("Relevant knowledge base information:\n")
		b.WriteString(kb)
		b.WriteString("\n\nUse this information to answer the user's questions when relevant.\n\n")
	}

	b.WriteString("You can understand and respond in multiple languages. " +
		"Always reply in the language the user speaks to you.\n\n")

	if in.IsNewConversation {
		b.WriteString("This is a new conversation with no previous messages. Speak first: " +
			"greet the user warmly, introduce yourself by name, and briefly mention what " +
			"you can help with. Keep the greeting to 2-3 sentences at most. Do not use " +
			"generic phrases like \"How can I help you today?\"; generate a natural, " +
			"context-appropriate greeting instead.\n\n")
	} else {
		b.WriteString("This is a continuing conversation. Do not greet the user again or " +
			"introduce yourself; pick up naturally where the conversation left off.\n\n")
	}

	b.WriteString("If you do not yet know the user's name or contact details, work them into " +
		"the conversation naturally. Never open with a request for contact information.\n\n")

	b.WriteString("You are speaking aloud. Keep responses short and conversational. " +
		"Do not use markdown, bullet points, emoji, or other formatting that cannot be spoken.")

	return b.String()
}

// GreetingInstructions returns the directive passed to the pipeline's first
// reply generation after the settle delay. The greeting is LLM-generated, not
// hardcoded, so the directive carries the agent's name and role rather than a
// canned opening line.
func GreetingInstructions(agent *types.AgentConfig) string {
	if agent == nil {
		agent = types.FallbackAgentConfig()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Introduce yourself as %s.", agent.Name)
	if desc := strings.TrimSpace(agent.Description); desc != "" {
		// 仅取描述首句，避免问候被职责清单撑长
		first, _, _ := strings.Cut(desc, ".")
		fmt.Fprintf(&b, " Briefly mention: %s.", strings.TrimSpace(first))
	}
	b.WriteString(" Use short sentences, natural pauses, and a conversational tone. " +
		"Keep it friendly and concise, 2-3 sentences at most. " +
		"Do not use generic phrases like \"How can I help you today?\"; " +
		"generate a natural, context-appropriate greeting that sounds spoken, not read.")
	return b.String()
}

// lowerFirst 仅小写首字符，保留描述中的专有名词
func lowerFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// clampKB trims the KB block to at most budget tokens, cutting on snippet
// boundaries so no snippet is truncated mid-sentence.
func (c *Composer) clampKB(kb string, budget int) string {
	kb = strings.TrimSpace(kb)
	if kb == "" || budget <= 0 {
		return kb
	}
	if c.countTokens(kb) <= budget {
		return kb
	}

	parts := strings.Split(kb, "\n\n")
	var kept []string
	used := 0
	for _, part := range parts {
		n := c.countTokens(part)
		if used+n > budget {
			break
		}
		kept = append(kept, part)
		used += n
	}
	if len(kept) == 0 && len(parts) > 0 {
		// 单条就超预算时按 token 截断首条
		return c.truncateTokens(parts[0], budget)
	}
	return strings.Join(kept, "\n\n")
}

func (c *Composer) countTokens(s string) int {
	if c.encoding == nil {
		// ~4 chars per token heuristic
		return (len(s) + 3) / 4
	}
	return len(c.encoding.Encode(s, nil, nil))
}

func (c *Composer) truncateTokens(s string, budget int) string {
	if c.encoding == nil {
		max := budget * 4
		if len(s) <= max {
			return s
		}
		return s[:max]
	}
	toks := c.encoding.Encode(s, nil, nil)
	if len(toks) <= budget {
		return s
	}
	return c.encoding.Decode(toks[:budget])
}
