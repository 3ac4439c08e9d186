package contact

import (
	"github.com/BaSui01/voiceflow/types"
)

// MergeIntoMetadata folds validated contact fields into conversation metadata
// additively: a key is written only when it is absent or empty in the current
// metadata, so earlier-captured values always survive. The input map is never
// mutated. Merging the same info twice is a no-op.
func MergeIntoMetadata(meta types.ConversationMetadata, info *types.ExtractedContactInfo) (types.ConversationMetadata, bool) {
	if info == nil || !info.HasContactInfo() {
		return meta, false
	}
	out := meta.Clone()
	if out == nil {
		out = types.ConversationMetadata{}
	}

	changed := false
	set := func(key, value string) {
		if value == "" {
			return
		}
		if out.StringField(key) != "" {
			return
		}
		out[key] = value
		changed = true
	}

	set("contact_email", info.Email)
	set("contact_phone", info.Phone)
	set("contact_first_name", info.FirstName)
	set("contact_last_name", info.LastName)
	set("contact_company_name", info.CompanyName)

	if !changed {
		return meta, false
	}
	return out, true
}

// MetadataToInfo reads previously merged contact fields back out of
// conversation metadata.
func MetadataToInfo(meta types.ConversationMetadata) *types.ExtractedContactInfo {
	return &types.ExtractedContactInfo{
		Email:       meta.StringField("contact_email"),
		Phone:       meta.StringField("contact_phone"),
		FirstName:   meta.StringField("contact_first_name"),
		LastName:    meta.StringField("contact_last_name"),
		CompanyName: meta.StringField("contact_company_name"),
	}
}
