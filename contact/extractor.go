// Package contact extracts, validates, merges, and persists contact details
// surfaced during voice conversations. Every step is best-effort: an
// extraction failure never interrupts a live call.
package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/voiceflow/llm"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// ===== 📦 联系人信息抽取 =====

const (
	extractionModel       = "gpt-4o-mini"
	extractionTemperature = 0.1
	extractionMaxTokens   = 300
)

const extractionSystemPrompt = "You are a contact information extraction assistant. " +
	"Extract contact details from conversation text. " +
	"Pay special attention to spelled-out emails (e.g. 'john dot smith at gmail dot com') " +
	"and correct obvious transcription errors in email domains. " +
	"Respond ONLY with a JSON object."

// Extractor runs LLM-based contact extraction over user messages.
type Extractor struct {
	client *llm.Client
	logger *zap.Logger
}

// NewExtractor 创建抽取器
func NewExtractor(client *llm.Client, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		client: client,
		logger: logger.With(zap.String("component", "contact_extractor")),
	}
}

// Extract runs one extraction pass over text, with optional recent
// conversation lines for disambiguation, and returns the validated result.
// A nil result with nil error means nothing usable was found.
func (e *Extractor) Extract(ctx context.Context, text string, recentContext []string) (*types.ExtractedContactInfo, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if e.client == nil || !e.client.Configured() {
		return nil, types.NewError(types.ErrExtraction, "extraction client not configured")
	}

	var contextBlock string
	if len(recentContext) > 0 {
		contextBlock = fmt.Sprintf("\n\nRecent conversation for context:\n%s",
			strings.Join(recentContext, "\n"))
	}

	userPrompt := fmt.Sprintf(`Extract contact information from this message: "%s"%s

Return a JSON object with these fields (omit fields that are not present):
- email: the email address, corrected for obvious transcription errors
- phone: the phone number
- first_name: the person's first name
- last_name: the person's last name
- company_name: the company they mention working for
- confidence: your confidence in the name fields, 0.0 to 1.0
- errors_detected: list of transcription errors you noticed
- corrections_made: map of original text to corrected text`, text, contextBlock)

	resp, err := e.client.Completion(ctx, &llm.ChatRequest{
		Model: extractionModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionSystemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		MaxTokens:      extractionMaxTokens,
		Temperature:    extractionTemperature,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, types.NewError(types.ErrExtraction, "contact extraction call failed").WithCause(err)
	}

	raw := resp.Text()
	var info types.ExtractedContactInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		e.logger.Warn("extraction returned non-JSON payload", zap.Error(err))
		return nil, types.NewError(types.ErrExtraction, "malformed extraction response").WithCause(err)
	}

	validated := Validate(&info)
	if !validated.HasContactInfo() {
		return nil, nil
	}
	if len(info.ErrorsDetected) > 0 {
		e.logger.Info("extraction corrected transcription errors",
			zap.Strings("errors", info.ErrorsDetected))
	}
	return validated, nil
}
