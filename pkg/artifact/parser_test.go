package artifact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Record
	}{
		{
			name:     "bare object",
			input:    `{"riskLevel": "low"}`,
			expected: Record{"riskLevel": "low"},
		},
		{
			name:     "bare object with surrounding whitespace",
			input:    "\n\n  {\"a\": 1}  \n",
			expected: Record{"a": float64(1)},
		},
		{
			name:     "fenced block with commentary",
			input:    "Here is the result:\n```json\n{\"questions\": [\"Who?\", \"Why?\"]}\n```\nLet me know if you need more.",
			expected: Record{"questions": []any{"Who?", "Why?"}},
		},
		{
			name:     "uppercase tag",
			input:    "```JSON\n{\"ok\": true}\n```",
			expected: Record{"ok": true},
		},
		{
			name:     "fence on a single line",
			input:    "```json {\"ok\": true}```",
			expected: Record{"ok": true},
		},
		{
			name:     "first of multiple fences wins",
			input:    "```json\n{\"n\": 1}\n```\nand also\n```json\n{\"n\": 2}\n```",
			expected: Record{"n": float64(1)},
		},
		{
			name:     "trailing text after fence ignored",
			input:    "```json\n{\"n\": 1}\n``` trailing {garbage",
			expected: Record{"n": float64(1)},
		},
		{
			name:     "unterminated fence",
			input:    "```json\n{\"n\": 3}\n",
			expected: Record{"n": float64(3)},
		},
		{
			name:     "empty object accepted",
			input:    "```json\n{}\n```",
			expected: Record{},
		},
		{
			name:     "broken fence falls back to whole text",
			input:    "{\"note\": \"```json not really\"}",
			expected: Record{"note": "```json not really"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rec)
		})
	}
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain noise", "no data here"},
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"array is not a record", `["a", "b"]`},
		{"null", "null"},
		{"scalar", `"just a string"`},
		{"trailing text without fence", `{"a": 1} and some words`},
		{"malformed fence and malformed body", "```json\n{\"a\": \n```"},
		{"untagged fence", "```\n{\"a\": 1}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, IsParseError(err))

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.input, pe.Raw)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		original Record
	}{
		{
			name: "nested record",
			original: Record{
				"questions": []any{"What age range?", "Which platforms?"},
				"draftRequirements": map[string]any{
					"coreFeatures":   []any{"Profiles", "Feed"},
					"aesthetics":     "Playful",
					"targetAudience": "Pet owners",
				},
				"count": float64(2),
			},
		},
		{
			name:     "fences inside string values",
			original: Record{"aesthetics": "show code as ```go snippets```"},
		},
		{
			name:     "json fence inside string value",
			original: Record{"note": "wrap output in ```json\n{}\n``` blocks"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := json.MarshalIndent(tt.original, "", "  ")
			require.NoError(t, err)

			raw := "Sure! Here you go:\n```json\n" + string(encoded) + "\n```\nThanks."
			rec, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.original, rec)
		})
	}
}

func TestParseError_DoesNotEmbedRawText(t *testing.T) {
	_, err := Parse("secret model musings without json")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret model musings")
}
