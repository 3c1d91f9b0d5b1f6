package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation matches any *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidationError rejects an ingestion request; the ledger is left untouched.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fe.Error())
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ByField groups messages by field name, the shape problem responses use.
func (e *ValidationError) ByField() map[string][]string {
	out := make(map[string][]string, len(e.Fields))
	for _, fe := range e.Fields {
		out[fe.Field] = append(out[fe.Field], fe.Msg)
	}
	return out
}

// ValidateRaw checks the required fields of an ingestion request and returns
// the parsed action. The timestamp is never validated: bad or missing values
// fall back to the ingestion time.
func ValidateRaw(raw RawEvent) (Action, error) {
	var errs []FieldError

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		errs = append(errs, FieldError{"name", "required"})
	} else if len(name) > MaxPersonNameLen {
		errs = append(errs, FieldError{"name", fmt.Sprintf("max length %d", MaxPersonNameLen)})
	}

	var action Action
	if strings.TrimSpace(raw.Action) == "" {
		errs = append(errs, FieldError{"action", "required"})
	} else if a, ok := ParseAction(raw.Action); !ok {
		errs = append(errs, FieldError{"action", `must be one of "in", "out"`})
	} else {
		action = a
	}

	if len(errs) > 0 {
		return 0, &ValidationError{Fields: errs}
	}
	return action, nil
}
