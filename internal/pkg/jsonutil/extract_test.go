package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBareObject(t *testing.T) {
	out, ok := ExtractObject(`{"a": 1}`)
	assert.True(t, ok)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestExtractFromProse(t *testing.T) {
	out, ok := ExtractObject(`Sure, here you go: {"a": {"b": 2}} hope that helps`)
	assert.True(t, ok)
	assert.Equal(t, `{"a": {"b": 2}}`, out)
}

func TestExtractFromFence(t *testing.T) {
	out, ok := ExtractObject("```json\n{\"a\": 1}\n```")
	assert.True(t, ok)
	assert.Equal(t, `{"a": 1}`, out)

	out, ok = ExtractObject("```\n{\"a\": 1}\n```")
	assert.True(t, ok)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestExtractBracesInsideStrings(t *testing.T) {
	raw := `{"text": "closing } brace and \" escaped quote"}`
	out, ok := ExtractObject("noise " + raw + " noise")
	assert.True(t, ok)
	assert.Equal(t, raw, out)
}

func TestExtractFailures(t *testing.T) {
	for _, input := range []string{"", "no json here", "{\"unclosed\": 1", "```\nnot json\n```"} {
		_, ok := ExtractObject(input)
		assert.False(t, ok, input)
	}
}
