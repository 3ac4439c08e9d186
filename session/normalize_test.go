package session

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeItemText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello there", "hello there"},
		{"json array unwrapped", `["hello there"]`, "hello there"},
		{"json array joined", `["hello", "there"]`, "hello there"},
		{"python style list", `['hello there']`, "hello there"},
		{"stray quoting stripped", `["hello there']`, "hello there"},
		{"whitespace trimmed", "  hi  ", "hi"},
		{"empty", "", ""},
		{"empty array", "[]", ""},
		{"whitespace only", "   ", ""},
		{"brackets mid-text untouched", "press [1] to continue", "press [1] to continue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeItemText(tt.in))
		})
	}
}

func TestNormalizeItemTextProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("idempotent on plain words", prop.ForAll(
		func(s string) bool {
			once := NormalizeItemText(s)
			return NormalizeItemText(once) == once
		},
		gen.RegexMatch(`[a-zA-Z ,.!?]{0,40}`),
	))

	properties.Property("never returns surrounding whitespace", prop.ForAll(
		func(s string) bool {
			out := NormalizeItemText(s)
			return out == "" || (out[0] != ' ' && out[len(out)-1] != ' ')
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
