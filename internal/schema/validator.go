package schema

import (
	"fmt"
	"sort"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// Validate checks a raw payload against the schema for deviceType and returns
// the payload with values coerced and defaults applied. On failure the error
// is a *ValidationError listing every offending field, or wraps
// ErrUnsupportedDeviceType when no schema exists.
func Validate(deviceType models.DeviceType, raw models.Reading) (models.Reading, error) {
	s, err := Lookup(deviceType)
	if err != nil {
		return nil, err
	}
	return s.Validate(raw)
}

// Validate applies the schema to raw. raw is never modified.
func (s *Schema) Validate(raw models.Reading) (models.Reading, error) {
	if raw == nil {
		raw = models.Reading{}
	}
	out, errs := validateFields("", s.Fields, raw, s.Strict)
	if len(errs) > 0 {
		return nil, &ValidationError{DeviceType: s.Type, Fields: errs}
	}
	return models.Reading(out), nil
}

// validateFields checks declared fields in declaration order, then handles
// undeclared keys in sorted order so error reports are deterministic.
func validateFields(path string, fields []Field, in map[string]interface{}, strict bool) (map[string]interface{}, []FieldError) {
	out := make(map[string]interface{}, len(in))
	var errs []FieldError

	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.name] = struct{}{}
		fieldPath := joinPath(path, f.name)

		v, present := in[f.name]
		if !present {
			if f.required {
				errs = append(errs, FieldError{
					Path:       fieldPath,
					Message:    fmt.Sprintf("%q is required", fieldPath),
					Constraint: "required",
				})
				continue
			}
			if f.def != nil {
				out[f.name] = f.def
			}
			continue
		}

		coerced, fieldErrs := f.check(fieldPath, v, strict)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		out[f.name] = coerced
	}

	var unknown []string
	for k := range in {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		if strict {
			fieldPath := joinPath(path, k)
			errs = append(errs, FieldError{
				Path:       fieldPath,
				Message:    fmt.Sprintf("%q is not allowed", fieldPath),
				Value:      in[k],
				Constraint: "unknown",
			})
			continue
		}
		// extra telemetry passes through uninterpreted
		out[k] = in[k]
	}

	return out, errs
}
