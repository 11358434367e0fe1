// Package validation holds the explicit schema checks applied to message
// submissions before anything touches the store.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"chatboard/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("nonblank", nonBlank); err != nil {
		panic(fmt.Sprintf("validation: register nonblank: %v", err))
	}
	return v
}

func nonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

type messageRules struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Message string  `json:"message" validate:"required,nonblank,max=10000"`
}

// Error is a set of per-field validation messages. Fields keep the order in
// which they first failed.
type Error struct {
	Fields map[string][]string
	order  []string
}

func (e *Error) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.order = append(e.order, field)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *Error) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

// First returns the first message of the first failing field.
func (e *Error) First() string {
	if len(e.order) == 0 {
		return ""
	}
	return e.Fields[e.order[0]][0]
}

func (e *Error) Error() string {
	if e == nil || len(e.order) == 0 {
		return "validation failed"
	}
	total := 0
	for _, f := range e.order {
		total += len(e.Fields[f])
	}
	if total > 1 {
		return fmt.Sprintf("%s (and %d more error(s))", e.First(), total-1)
	}
	return e.First()
}

func (e *Error) empty() bool { return e == nil || len(e.order) == 0 }

// MessageBody reads name and message out of a decoded JSON object and checks
// them. Any other keys, ip_address included, are ignored. A nil body is
// treated as an empty object.
func MessageBody(body map[string]any) (models.MessageInput, error) {
	verr := &Error{}
	var in models.MessageInput

	switch v := body["name"].(type) {
	case nil:
	case string:
		in.Name = normalizeName(&v)
	default:
		verr.Add("name", "The name field must be a string.")
	}

	switch v := body["message"].(type) {
	case nil:
	case string:
		in.Message = v
	default:
		verr.Add("message", "The message field must be a string.")
	}

	rules := messageRules{Name: in.Name, Message: in.Message}
	if verr.Has("name") {
		rules.Name = nil
	}
	if verr.Has("message") {
		// already failed on type, skip constraint checks
		rules.Message = "x"
	}
	collect(verr, rules)
	if !verr.empty() {
		return models.MessageInput{}, verr
	}
	return in, nil
}

// MessageInput checks an already typed input against the same constraints.
// Empty names are normalized to nil in place.
func MessageInput(in *models.MessageInput) error {
	in.Name = normalizeName(in.Name)
	verr := &Error{}
	collect(verr, messageRules{Name: in.Name, Message: in.Message})
	if !verr.empty() {
		return verr
	}
	return nil
}

func collect(verr *Error, rules messageRules) {
	err := validate.Struct(rules)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("message", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), describe(fe))
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "nonblank":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", fe.Field())
	}
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
