package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/llm"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", "[1, 2]"},
		{"prose around", "Sure!\n```json\n{\"a\": 1}\n```\nAnything else?", `{"a": 1}`},
		{"unterminated", "```json\n{\"a\": 1}", `{"a": 1}`},
		{"no fence", `{"a": "x"}`, `{"a": "x"}`},
		{"backticks inside value", `{"a": "use ` + "```" + ` here"}`, `{"a": "use ` + "```" + ` here"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.StripFences(tt.input))
		})
	}
}

func TestExtractSpan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"object in prose", `The answer is {"a": {"b": 1}} as requested.`, `{"a": {"b": 1}}`},
		{"array first", `Result: [{"a": 1}] done`, `[{"a": 1}]`},
		{"brace inside string", `x {"a": "}"} y`, `{"a": "}"}`},
		{"unbalanced", `{"a": [1, 2} trailing`, `{"a": [1, 2}`},
		{"no json", "I cannot help with that.", "I cannot help with that."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractSpan(tt.input))
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, llm.Sanitize("\uFEFF{\"a\":\u200B 1}"))
	assert.Equal(t, "{\"a\":\n1}", llm.Sanitize("{\"a\":\x00\n1}"))
	assert.Equal(t, "\u00e9", llm.Sanitize("e\u0301"))
	assert.Equal(t, "a\uFFFDb", llm.Sanitize("a\xffb"))
}

func TestSanitizeKeepsStringContent(t *testing.T) {
	assert.Equal(t, "{\"sep\": \"a\u200bb\"}", llm.Sanitize("{\"sep\":\u200B \"a\u200bb\"}"))
	assert.Equal(t, "[\"\ufeffx\", \"a\u0085b\", \"e\u0301\"]", llm.Sanitize("[\"\ufeffx\", \"a\u0085b\", \"e\u0301\"]"))
	assert.Equal(t, `{"a": "xy"}`, llm.Sanitize("{\"a\": \"x\x01y\"}"))
	escaped := "{\"a\": \"q\\\"\u200b\"}"
	assert.Equal(t, escaped, llm.Sanitize(escaped))
}

func TestCollapseNewlines(t *testing.T) {
	assert.Equal(t, "{\"a\": \"line one line two\",\n\"b\": 1}",
		llm.CollapseNewlines("{\"a\": \"line one\nline two\",\n\"b\": 1}"))
	assert.Equal(t, `{"a": "x y"}`, llm.CollapseNewlines("{\"a\": \"x\r\n\ty\"}"))
}

func TestEscapeStrayQuotes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"inner quotes", `{"a": "say "hi" now"}`, `{"a": "say \"hi\" now"}`},
		{"already escaped", `{"a": "say \"hi\""}`, `{"a": "say \"hi\""}`},
		{"keys untouched", `{"a": "x", "b": "y"}`, `{"a": "x", "b": "y"}`},
		{"array of strings", `["a "b" c", "d"]`, `["a \"b\" c", "d"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.EscapeStrayQuotes(tt.input))
		})
	}
}

func TestRemoveTrailingCommas(t *testing.T) {
	assert.Equal(t, `{"a": [1, 2] }`, llm.RemoveTrailingCommas(`{"a": [1, 2,], }`))
	assert.Equal(t, "[1\n]", llm.RemoveTrailingCommas("[1,\n]"))
	assert.Equal(t, `{"a": ",]"}`, llm.RemoveTrailingCommas(`{"a": ",]"}`))
}

func TestQuoteBareKeys(t *testing.T) {
	assert.Equal(t, `{"role_name": "x", "priority": 1}`, llm.QuoteBareKeys(`{role_name: "x", priority: 1}`))
	assert.Equal(t, `[true, false]`, llm.QuoteBareKeys(`[true, false]`))
	assert.Equal(t, `{"a": "b: c"}`, llm.QuoteBareKeys(`{"a": "b: c"}`))
	assert.Equal(t, `{"a": {"nested-key": null}}`, llm.QuoteBareKeys(`{"a": {nested-key: null}}`))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, `{ "a": "x   y", "b": [ 1, 2 ] }`,
		llm.NormalizeWhitespace("  {\n  \"a\":   \"x   y\",\n\t\"b\": [\n 1,\n 2\n ]\n}\n"))
}

func TestCleanRoundTrip(t *testing.T) {
	inputs := []string{
		`{"a": 1, "b": [true, false, null], "c": {"d": "e \"quoted\" f"}}`,
		`[{"role_name": "Backend Engineer", "priority": 1}]`,
		"{\n  \"summary\": \"tabs\\tand\\nnewlines\",\n  \"score\": 4.5\n}",
		`"just a string"`,
		`[]`,
		`{"url": "https://example.com/a,b]"}`,
		"{\"sep\": \"a\u200bb\"}",
		"{\"bom\": \"\ufeffx\"}",
		"{\"nel\": \"a\u0085b\"}",
		"{\"accent\": \"e\u0301\"}",
		`"see {x}"`,
		`"[not a list]"`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			var direct, cleaned interface{}
			require.NoError(t, json.Unmarshal([]byte(in), &direct))
			require.NoError(t, json.Unmarshal([]byte(llm.Clean(in)), &cleaned))
			assert.Equal(t, direct, cleaned)
		})
	}
}

func TestCleanKeepsValidJSONVerbatim(t *testing.T) {
	in := "{\"resume\": \"Go\u200b/SQL\u0085\", \"n\": 1}"
	assert.Equal(t, in, llm.Clean("\n  "+in+"\n"))
}

func TestCleanKeepsStringContentWhileRepairing(t *testing.T) {
	raw := "```json\n{\"skills\": \"Go\u200b/SQL\u0085\",}\n```"

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(llm.Clean(raw)), &v))
	assert.Equal(t, "Go\u200b/SQL\u0085", v["skills"])
}

func TestCleanRepairsTypicalOutput(t *testing.T) {
	raw := "Sure, here it is:\n```json\n{\n  role_name: \"Backend\nEngineer\",\n  \"priority\": 1,\n}\n```"

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(llm.Clean(raw)), &v))
	assert.Equal(t, "Backend Engineer", v["role_name"])
	assert.Equal(t, float64(1), v["priority"])
}
