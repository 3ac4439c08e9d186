package contact

import (
	"strings"
	"unicode"

	"github.com/BaSui01/voiceflow/types"
)

// ===== 📦 字段校验与归一化 =====

// Validate applies the acceptance rules to a raw extraction result and
// returns a new value holding only the fields that pass:
//
//   - email: lowercased, trimmed, must contain "@"
//   - phone: digits only, at least 10 digits
//   - first/last name: kept only when confidence >= 0.7
//   - company_name: kept as-is, no confidence gate
func Validate(raw *types.ExtractedContactInfo) *types.ExtractedContactInfo {
	out := &types.ExtractedContactInfo{
		Confidence:      raw.Confidence,
		ErrorsDetected:  raw.ErrorsDetected,
		CorrectionsMade: raw.CorrectionsMade,
	}

	if email := NormalizeEmail(raw.Email); email != "" {
		out.Email = email
	}
	if phone := NormalizePhone(raw.Phone); phone != "" {
		out.Phone = phone
	}
	if raw.Confidence >= types.MinNameConfidence {
		out.FirstName = strings.TrimSpace(raw.FirstName)
		out.LastName = strings.TrimSpace(raw.LastName)
	}
	out.CompanyName = strings.TrimSpace(raw.CompanyName)
	return out
}

// NormalizeEmail lowercases and trims; returns "" unless the result contains
// an "@".
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

// NormalizePhone strips every non-digit rune; returns "" when fewer than 10
// digits remain. "+1 (555) 123-4567" normalizes to "15551234567".
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < types.MinPhoneDigits {
		return ""
	}
	return digits
}
