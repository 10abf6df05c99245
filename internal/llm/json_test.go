package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, false},
		{"prose around", `Here you go: {"a":"}"} hope it helps {"b":1}`, `{"a":"}"}`, false},
		{"escaped quote", `{"a":"say \"}\""}`, `{"a":"say \"}\""}`, false},
		{"unbalanced", `{"a":1`, "", true},
		{"none", `no json here`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	got, err := ExtractJSONArray("Suggestions:\n[{\"x\":[1,2]}, {\"y\":\"]\"}]\nDone.")
	require.NoError(t, err)
	assert.Equal(t, `[{"x":[1,2]}, {"y":"]"}]`, got)

	_, err = ExtractJSONArray(`{"not":"an array"}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
