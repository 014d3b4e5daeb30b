package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
		{"prose then fence", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Refer bool `json:"refer"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"refer\": true}\n```", &out))
	assert.True(t, out.Refer)

	assert.Error(t, DecodeJSON("not json at all", &out))
}
