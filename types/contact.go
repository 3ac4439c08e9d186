package types

// =============================================================================
// 联系人抽取结果
// =============================================================================

// MinNameConfidence 是接受姓名字段的最低置信度。
const MinNameConfidence = 0.7

// MinPhoneDigits 是归一化后电话号码的最少位数。
const MinPhoneDigits = 10

// ExtractedContactInfo is the confidence-gated result of one contact
// extraction run over a user message. It is never persisted directly; it is
// merged additively into conversation metadata and upserted into the contact
// store.
type ExtractedContactInfo struct {
	Email       string  `json:"email,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	FirstName   string  `json:"first_name,omitempty"`
	LastName    string  `json:"last_name,omitempty"`
	CompanyName string  `json:"company_name,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`

	// ErrorsDetected 列出模型发现的错误（如邮箱域名拼写错误）
	ErrorsDetected []string `json:"errors_detected,omitempty"`

	// CorrectionsMade 记录 原文 -> 修正后 的映射
	CorrectionsMade map[string]string `json:"corrections_made,omitempty"`
}

// HasContactInfo reports whether at least one identity field is non-empty.
func (e *ExtractedContactInfo) HasContactInfo() bool {
	return e.Email != "" || e.Phone != "" || e.FirstName != "" ||
		e.LastName != "" || e.CompanyName != ""
}

// ConversationMetadata is the contact-field mapping owned by the conversation
// record. Mutated only by additive merge: existing non-empty fields win.
type ConversationMetadata map[string]any

// Clone returns a shallow copy so merges never mutate the caller's map.
func (m ConversationMetadata) Clone() ConversationMetadata {
	out := make(ConversationMetadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringField returns the metadata value for key when it is a non-empty
// string.
func (m ConversationMetadata) StringField(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
