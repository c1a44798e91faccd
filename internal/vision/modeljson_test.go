package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelJSONStripsFences(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	cases := map[string]string{
		"bare":         `{"name":"Nordic","score":95}`,
		"json fence":   "```json\n{\"name\":\"Nordic\",\"score\":95}\n```",
		"plain fence":  "```\n{\"name\":\"Nordic\",\"score\":95}\n```",
		"leading text": "  \n```json\n  {\"name\":\"Nordic\",\"score\":95}  \n```\n",
	}

	for label, text := range cases {
		var got payload
		require.NoError(t, ParseModelJSON(text, &got), label)
		assert.Equal(t, "Nordic", got.Name, label)
		assert.Equal(t, 95, got.Score, label)
	}
}

func TestParseModelJSONErrors(t *testing.T) {
	var v map[string]any

	err := ParseModelJSON("", &v)
	require.Error(t, err)

	err = ParseModelJSON("```json\n```", &v)
	require.Error(t, err)

	err = ParseModelJSON("the model replied with prose instead", &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse model JSON")
}
