package llm

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ParseStatus is the outcome of Parse.
type ParseStatus int

const (
	ParseOK ParseStatus = iota
	ParseNeedsRepair
	ParseFailed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseNeedsRepair:
		return "needs_repair"
	default:
		return "failed"
	}
}

// ParseResult carries the decoded value when Status is ParseOK.
type ParseResult struct {
	Status  ParseStatus
	Value   interface{}
	Cleaned string
	Err     error
}

var errEmpty = errors.New("empty response")

// Parse decodes text as is when it is valid JSON and otherwise runs the
// recovery pipeline first. Blank input is ParseFailed since there is
// nothing to repair; text that still does not decode is ParseNeedsRepair.
func Parse(text string) ParseResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult{Status: ParseFailed, Err: errEmpty}
	}

	if v, err := decode(trimmed); err == nil {
		return ParseResult{Status: ParseOK, Value: v, Cleaned: trimmed}
	}

	cleaned := runPipeline(text)
	v, err := decode(cleaned)
	if err != nil {
		return ParseResult{Status: ParseNeedsRepair, Cleaned: cleaned, Err: err}
	}
	return ParseResult{Status: ParseOK, Value: v, Cleaned: cleaned}
}

func decode(s string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
