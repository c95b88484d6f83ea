package llm

import (
	"encoding/json"
	"strings"
)

const correctiveNote = "Note: the previous response didn't match the expected structure. " +
	"Return every required key with the declared types."

// BuildPrompt composes the prompt for one attempt.
func BuildPrompt(req Request, corrective bool) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(req.Prompt))

	if req.Example != nil {
		if example, err := json.MarshalIndent(req.Example, "", "  "); err == nil {
			sb.WriteString("\n\nExample of the expected output:\n")
			sb.Write(example)
		}
	}

	sb.WriteString("\n\nRespond with JSON only. Do not add explanations, prose or code fences.")
	if req.Schema != nil {
		sb.WriteString("\nThe JSON must match this structure:\n")
		sb.WriteString(req.Schema.Describe())
	}

	if corrective {
		sb.WriteString("\n\n")
		sb.WriteString(correctiveNote)
	}
	return sb.String()
}

// RepairPrompt asks the model to fix syntax only.
func RepairPrompt(raw string) string {
	return "The following text was meant to be JSON but does not parse. " +
		"Fix the JSON syntax only. Do not change keys or values. " +
		"Respond with the corrected JSON and nothing else.\n\n" + raw
}
