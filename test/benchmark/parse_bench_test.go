package benchmark

import (
	"strings"
	"testing"

	"github.com/TheMichaelB/jobhunt/internal/llm"
)

var replies = map[string]string{
	"clean": `{"match_score": 82, "summary": "Strong backend fit", "strengths": ["Go", "SQL"], "gaps": ["Kubernetes"]}`,
	"fenced": "Sure! Here is the analysis:\n```json\n" +
		`{"match_score": 82, "summary": "Strong backend fit", "strengths": ["Go", "SQL"], "gaps": ["Kubernetes"]}` +
		"\n```\nLet me know if you need more.",
	"broken": "```\n{match_score: 82, 'summary': \"He said \"hi\" to us\",\n\n\n\"strengths\": [\"Go\", \"SQL\",],}\n```",
}

func BenchmarkParse(b *testing.B) {
	for name, text := range replies {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = llm.Parse(text)
			}
		})
	}
}

func BenchmarkClean(b *testing.B) {
	text := strings.Repeat(replies["broken"], 50)

	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = llm.Clean(text)
	}
}
