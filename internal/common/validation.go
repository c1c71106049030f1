package common

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError is one failed rule on one field. Values are echoed only in
// short form; message text can be long and personal.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	if s, ok := e.Value.(string); ok && s != "" {
		return fmt.Sprintf("%s %s (got %q)", e.Field, e.Message, preview(s, 32))
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ValidationRule checks one value; nil means it passed.
type ValidationRule func(field string, value any) *ValidationError

// Validator collects rule failures across fields.
type Validator struct {
	errs []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs every rule against value and keeps the failures.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if e := rule(name, value); e != nil {
			v.errs = append(v.errs, *e)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errs
}

// ErrorMessage joins every failure with "; ".
func (v *Validator) ErrorMessage() string {
	parts := make([]string, 0, len(v.errs))
	for _, e := range v.errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Required rejects nil, blank strings and zero times.
func Required(field string, value any) *ValidationError {
	missing := false
	switch v := value.(type) {
	case nil:
		missing = true
	case string:
		missing = strings.TrimSpace(v) == ""
	case *string:
		missing = v == nil || strings.TrimSpace(*v) == ""
	case time.Time:
		missing = v.IsZero()
	case *time.Time:
		missing = v == nil || v.IsZero()
	}
	if missing {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// MaxLength limits a string's length in runes.
func MaxLength(n int) ValidationRule {
	return func(field string, value any) *ValidationError {
		s, ok := value.(string)
		if !ok || utf8.RuneCountInString(s) <= n {
			return nil
		}
		return &ValidationError{Field: field, Value: s, Message: fmt.Sprintf("must be at most %d characters", n)}
	}
}

// ValidateAndReturnError turns collected failures into an INVALID_INPUT AppError.
func ValidateAndReturnError(v *Validator) error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError("INVALID_INPUT", v.ErrorMessage(), ErrInvalidInput)
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
