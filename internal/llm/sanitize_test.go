package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFragment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! here it is: {"a":"}"} hope that helps`, `{"a":"}"}`},
		{"nested", `x {"a":{"b":[1,2]}} y {"c":3}`, `{"a":{"b":[1,2]}}`},
		{"escaped quote", `{"a":"say \"hi\" }"}`, `{"a":"say \"hi\" }"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONFragment(tt.content)
			require.True(t, ok)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, ok := ExtractJSONFragment("no json at all")
	assert.False(t, ok)
	_, ok = ExtractJSONFragment(`{"a": `)
	assert.False(t, ok)
}

func TestNormalizeAndSanitizeJSON(t *testing.T) {
	raw := []byte(`{"vehicle_type":" SAR7 ","eta":null,"status":"en-route","quote":"omw","confidence":"85%","notes":"extra"}`)

	out, dropped, err := NormalizeAndSanitizeJSON(raw, nil)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "SAR7", m["vehicle"])
	assert.Equal(t, "Unknown", m["eta_iso"])
	assert.Equal(t, "Responding", m["status"])
	assert.Equal(t, "omw", m["evidence"])
	assert.InDelta(t, 0.85, m["confidence"], 1e-9)
	assert.NotContains(t, m, "notes")
	assert.ElementsMatch(t, []string{"vehicle_type->vehicle", "eta->eta_iso", "quote->evidence", "notes(unknown)"}, dropped)

	schema, err := CompileSchema(BuildProposalJSONSchema())
	require.NoError(t, err)
	assert.NoError(t, ValidateJSON(schema, out))
}

func TestNormalizeAndSanitizeJSONNeverInventsFields(t *testing.T) {
	raw := []byte(`{"vehicle":"POV","status":"Responding","evidence":"x","confidence":0.7}`)
	out, _, err := NormalizeAndSanitizeJSON(raw, nil)
	require.NoError(t, err)

	schema, err := CompileSchema(BuildProposalJSONSchema())
	require.NoError(t, err)
	assert.Error(t, ValidateJSON(schema, out), "missing eta_iso must stay invalid")
}

func TestNormalizeAndSanitizeJSONConfidence(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`1.7`, 1.0},
		{`-0.2`, 0.0},
		{`"0.4"`, 0.4},
		{`"90"`, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			out, _, err := NormalizeAndSanitizeJSON([]byte(`{"confidence":`+tt.in+`}`), nil)
			require.NoError(t, err)
			var m map[string]any
			require.NoError(t, json.Unmarshal(out, &m))
			assert.InDelta(t, tt.want, m["confidence"], 1e-9)
		})
	}

	out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{"confidence":"high"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
	assert.Contains(t, dropped, "confidence(type)")
}
