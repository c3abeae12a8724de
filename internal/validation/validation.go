// Package validation wraps go-playground/validator with the storefront's form rules.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	nameRe    = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]*$`)
	mobileRe  = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)
)

const (
	nameMin     = 2
	nameMax     = 50
	passwordMin = 8
	passwordMax = 64
	emailMax    = 254
)

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Errors is returned when one or more fields fail validation.
type Errors struct {
	Fields []FieldError
}

func (e *Errors) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether the given field failed.
func (e *Errors) Has(field string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Details renders the errors for the JSON error envelope.
func (e *Errors) Details() map[string]any {
	fields := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		fields[f.Field] = f.Message
	}
	return map[string]any{"fields": fields}
}

// As reports whether err carries field errors.
func As(err error) (*Errors, bool) {
	var verr *Errors
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// Validator validates tagged structs.
type Validator struct {
	v *validator.Validate
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

// Default returns the shared validator.
func Default() *Validator {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV
}

// New builds a validator with the storefront tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	mustRegister(v, "name", func(fl validator.FieldLevel) bool { return Name(fl.Field().String()) })
	mustRegister(v, "mobile", func(fl validator.FieldLevel) bool { return Mobile(fl.Field().String()) })
	mustRegister(v, "pincode", func(fl validator.FieldLevel) bool { return Pincode(fl.Field().String()) })
	mustRegister(v, "password", func(fl validator.FieldLevel) bool { return Password(fl.Field().String()) })
	mustRegister(v, "storefront_email", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return len(value) <= emailMax && v.Var(value, "email") == nil
	})
	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// Struct validates s and returns *Errors when any field is rejected.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Errors{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "name":
		return fmt.Sprintf("must be %d-%d letters, spaces, dots, apostrophes or hyphens", nameMin, nameMax)
	case "mobile":
		return "must be a 10 digit mobile number starting with 6-9"
	case "pincode":
		return "must be a 6 digit pincode"
	case "storefront_email":
		return "must be a valid email address"
	case "password":
		return fmt.Sprintf("must be %d-%d characters with upper and lower case letters, a digit and a symbol", passwordMin, passwordMax)
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "url", "http_url":
		return "must be a valid URL"
	}
	return "is invalid"
}

// Name reports whether value is an acceptable person name.
func Name(value string) bool {
	value = strings.TrimSpace(value)
	n := utf8.RuneCountInString(value)
	return n >= nameMin && n <= nameMax && nameRe.MatchString(value)
}

// Mobile reports whether value is a 10 digit Indian mobile number.
func Mobile(value string) bool {
	return mobileRe.MatchString(strings.TrimSpace(value))
}

// Pincode reports whether value is a 6 digit postal code.
func Pincode(value string) bool {
	return pincodeRe.MatchString(strings.TrimSpace(value))
}

// Password enforces length and character class complexity.
func Password(value string) bool {
	n := utf8.RuneCountInString(value)
	if n < passwordMin || n > passwordMax {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSpace(r):
			return false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}
