package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

type kind int

const (
	kindNumber kind = iota
	kindString
	kindBool
	kindBoolOrBinary
	kindTimestamp
	kindObject
	kindArray
)

func (k kind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindBool:
		return "boolean"
	case kindBoolOrBinary:
		return "boolean or 0/1"
	case kindTimestamp:
		return "ISO-8601 date"
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	}
	return "unknown"
}

// Field is the constraint descriptor for one payload field
type Field struct {
	name     string
	kind     kind
	required bool
	min      float64
	max      float64
	hasMin   bool
	hasMax   bool
	enum     []string
	def      interface{}
	fields   []Field
	elem     *Field
}

func number(name string) Field    { return Field{name: name, kind: kindNumber} }
func str(name string) Field       { return Field{name: name, kind: kindString} }
func boolean(name string) Field   { return Field{name: name, kind: kindBool} }
func binary(name string) Field    { return Field{name: name, kind: kindBoolOrBinary} }
func timestamp(name string) Field { return Field{name: name, kind: kindTimestamp} }

func object(name string, fields ...Field) Field {
	return Field{name: name, kind: kindObject, fields: fields}
}

func array(name string, elem Field) Field {
	return Field{name: name, kind: kindArray, elem: &elem}
}

func (f Field) Required() Field {
	f.required = true
	return f
}

func (f Field) Min(v float64) Field {
	f.min, f.hasMin = v, true
	return f
}

func (f Field) Max(v float64) Field {
	f.max, f.hasMax = v, true
	return f
}

func (f Field) Between(lo, hi float64) Field {
	return f.Min(lo).Max(hi)
}

func (f Field) OneOf(values ...string) Field {
	f.enum = values
	return f
}

func (f Field) Default(v interface{}) Field {
	f.def = v
	return f
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// check validates v against the field and returns the coerced value
func (f Field) check(path string, v interface{}, strict bool) (interface{}, []FieldError) {
	switch f.kind {
	case kindNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, []FieldError{typeError(path, v, f.kind)}
		}
		var errs []FieldError
		if f.hasMin && n < f.min {
			errs = append(errs, FieldError{
				Path:       path,
				Message:    fmt.Sprintf("%q must be greater than or equal to %s", path, formatNumber(f.min)),
				Value:      v,
				Constraint: "min:" + formatNumber(f.min),
			})
		}
		if f.hasMax && n > f.max {
			errs = append(errs, FieldError{
				Path:       path,
				Message:    fmt.Sprintf("%q must be less than or equal to %s", path, formatNumber(f.max)),
				Value:      v,
				Constraint: "max:" + formatNumber(f.max),
			})
		}
		return n, errs

	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, []FieldError{typeError(path, v, f.kind)}
		}
		if s == "" {
			return nil, []FieldError{{
				Path:       path,
				Message:    fmt.Sprintf("%q is not allowed to be empty", path),
				Value:      v,
				Constraint: "nonempty",
			}}
		}
		if len(f.enum) > 0 && !contains(f.enum, s) {
			return nil, []FieldError{{
				Path:       path,
				Message:    fmt.Sprintf("%q must be one of [%s]", path, strings.Join(f.enum, ", ")),
				Value:      v,
				Constraint: "enum:" + strings.Join(f.enum, "|"),
			}}
		}
		return s, nil

	case kindBool:
		b, ok := toBool(v)
		if !ok {
			return nil, []FieldError{typeError(path, v, f.kind)}
		}
		return b, nil

	case kindBoolOrBinary:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if n, ok := toFloat(v); ok && (n == 0 || n == 1) {
			return n, nil
		}
		return nil, []FieldError{{
			Path:       path,
			Message:    fmt.Sprintf("%q must be a boolean or one of [0, 1]", path),
			Value:      v,
			Constraint: "type:" + f.kind.String(),
		}}

	case kindTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, []FieldError{typeError(path, v, f.kind)}
		}
		if _, ok := models.ParseTimestamp(s); !ok {
			return nil, []FieldError{{
				Path:       path,
				Message:    fmt.Sprintf("%q must be in ISO 8601 date format", path),
				Value:      v,
				Constraint: "iso-date",
			}}
		}
		return s, nil

	case kindObject:
		m, ok := toMap(v)
		if !ok {
			return nil, []FieldError{typeError(path, v, f.kind)}
		}
		return validateFields(path, f.fields, m, strict)

	case kindArray:
		items, ok := v.([]interface{})
		if !ok {
			return nil, []FieldError{typeError(path, v, f.kind)}
		}
		out := make([]interface{}, 0, len(items))
		var errs []FieldError
		for i, item := range items {
			coerced, itemErrs := f.elem.check(joinPath(path, strconv.Itoa(i)), item, strict)
			errs = append(errs, itemErrs...)
			out = append(out, coerced)
		}
		return out, errs
	}
	return v, nil
}

func typeError(path string, v interface{}, k kind) FieldError {
	article := "a"
	if k == kindObject || k == kindArray || k == kindTimestamp {
		article = "an"
	}
	return FieldError{
		Path:       path,
		Message:    fmt.Sprintf("%q must be %s %s", path, article, k),
		Value:      v,
		Constraint: "type:" + k.String(),
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// numeric strings are converted, matching the loose mode devices rely on
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && strings.TrimSpace(n) != ""
	}
	return 0, false
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case models.Reading:
		return m, true
	}
	return nil, false
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
