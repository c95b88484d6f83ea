package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TheMichaelB/jobhunt/internal/models"
)

// Kind tags the variant of a Schema.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindList
)

// ScalarType is the runtime type a scalar must have.
type ScalarType int

const (
	TypeString ScalarType = iota
	TypeInteger
	TypeNumber
	TypeBoolean
)

func (t ScalarType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Field is a named member of a mapping schema.
type Field struct {
	Name   string
	Schema *Schema
}

// Schema describes expected JSON: a scalar, a mapping with required
// fields, or a homogeneous list.
type Schema struct {
	kind   Kind
	scalar ScalarType
	fields []Field
	elem   *Schema
}

func String() *Schema  { return &Schema{kind: KindScalar, scalar: TypeString} }
func Integer() *Schema { return &Schema{kind: KindScalar, scalar: TypeInteger} }
func Number() *Schema  { return &Schema{kind: KindScalar, scalar: TypeNumber} }
func Boolean() *Schema { return &Schema{kind: KindScalar, scalar: TypeBoolean} }

// F declares a mapping field.
func F(name string, s *Schema) Field {
	return Field{Name: name, Schema: s}
}

// Object declares a mapping. Every field is required; extra keys are allowed.
func Object(fields ...Field) *Schema {
	return &Schema{kind: KindMapping, fields: fields}
}

// ListOf declares a list whose elements all match elem.
func ListOf(elem *Schema) *Schema {
	return &Schema{kind: KindList, elem: elem}
}

// Kind reports the schema variant.
func (s *Schema) Kind() Kind { return s.kind }

// Matches reports whether v satisfies the schema.
func (s *Schema) Matches(v interface{}) bool {
	return s.Validate(v) == nil
}

// Validate checks v recursively. Values are expected in the shape produced
// by a json.Decoder with UseNumber; plain Go numbers are accepted too.
func (s *Schema) Validate(v interface{}) error {
	return s.validate("$", v)
}

func (s *Schema) validate(path string, v interface{}) error {
	switch s.kind {
	case KindMapping:
		m, ok := v.(map[string]interface{})
		if !ok {
			return mismatch(path, "expected object, got %s", typeName(v))
		}
		for _, f := range s.fields {
			child, present := m[f.Name]
			if !present {
				return mismatch(path+"."+f.Name, "missing required key")
			}
			if err := f.Schema.validate(path+"."+f.Name, child); err != nil {
				return err
			}
		}
		return nil

	case KindList:
		list, ok := v.([]interface{})
		if !ok {
			return mismatch(path, "expected array, got %s", typeName(v))
		}
		for i, el := range list {
			if err := s.elem.validate(fmt.Sprintf("%s[%d]", path, i), el); err != nil {
				return err
			}
		}
		return nil

	default:
		if !scalarMatches(s.scalar, v) {
			return mismatch(path, "expected %s, got %s", s.scalar, typeName(v))
		}
		return nil
	}
}

func scalarMatches(t ScalarType, v interface{}) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Int64()
			return err == nil
		case int, int32, int64:
			return true
		}
		return false
	case TypeNumber:
		switch n := v.(type) {
		case json.Number:
			_, err := n.Float64()
			return err == nil
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	}
	return false
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, int, int32, int64, float32, float64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func mismatch(path, format string, args ...interface{}) error {
	return &models.ValidationError{Field: path, Reason: fmt.Sprintf(format, args...)}
}

// Describe renders the schema as a JSON-like template for prompts, e.g.
// [{"role_name": string, "priority": integer}].
func (s *Schema) Describe() string {
	var sb strings.Builder
	s.describe(&sb)
	return sb.String()
}

func (s *Schema) describe(sb *strings.Builder) {
	switch s.kind {
	case KindMapping:
		sb.WriteString("{")
		for i, f := range s.fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%q: ", f.Name)
			f.Schema.describe(sb)
		}
		sb.WriteString("}")
	case KindList:
		sb.WriteString("[")
		s.elem.describe(sb)
		sb.WriteString("]")
	default:
		sb.WriteString(s.scalar.String())
	}
}
