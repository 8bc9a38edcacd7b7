// Package validator decodes JSON request bodies and checks them against
// go-playground/validator struct tags, reporting problems per JSON field.
package validator

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}()

// jsonName reports fields under the key the client sent.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// ValidationError lists every failed constraint of one struct.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("field '%s' %s", fe.Field(), describe(fe))
	}
	return strings.Join(parts, "; ")
}

// Fields maps each failing JSON field to a readable reason.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field()] = describe(fe)
	}
	return out
}

var tagMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"min":      "must be at least %s characters",
	"max":      "must be at most %s characters",
	"uuid":     "must be a valid UUID",
	"oneof":    "must be one of: %s",
}

func describe(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// Validate checks s against its validate tags. Constraint failures come back
// as *ValidationError.
func Validate(s any) error {
	err := validate.Struct(s)
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// DecodeAndValidate decodes at most 1 MiB of JSON from r into dst and
// validates it.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
