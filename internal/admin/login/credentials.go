package login

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field identifies an input of the login form.
type Field string

const (
	FieldNone     Field = ""
	FieldUsername Field = "username"
	FieldPassword Field = "password"
)

// PasswordTooShortMessage is shown when the password fails the length rule.
const PasswordTooShortMessage = "The password can not be less than 6 digits"

// MinPasswordLength is the shortest password the form will submit.
const MinPasswordLength = 6

// Credentials is the username/password pair bound to the form inputs.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) value(field Field) string {
	switch field {
	case FieldUsername:
		return c.Username
	case FieldPassword:
		return c.Password
	default:
		return ""
	}
}

// Rule checks a single field value. A non-nil error carries the message to
// render next to the field.
type Rule func(value string) error

// RuleSet lists the rules applied to each field, in order.
type RuleSet map[Field][]Rule

var validate = validator.New()

// MinLength rejects values with fewer than n characters.
func MinLength(n int, message string) Rule {
	tag := "min=" + strconv.Itoa(n)
	return func(value string) error {
		if err := validate.Var(value, tag); err != nil {
			return errors.New(message)
		}
		return nil
	}
}

// DefaultRules returns the rule set used by the console login form.
func DefaultRules() RuleSet {
	return RuleSet{
		FieldPassword: {MinLength(MinPasswordLength, PasswordTooShortMessage)},
	}
}

// check runs every rule and returns the first message per field.
func (rs RuleSet) check(creds Credentials) map[Field]string {
	var failures map[Field]string
	for field, rules := range rs {
		value := creds.value(field)
		for _, rule := range rules {
			if rule == nil {
				continue
			}
			if err := rule(value); err != nil {
				if failures == nil {
					failures = make(map[Field]string)
				}
				failures[field] = err.Error()
				break
			}
		}
	}
	return failures
}

// ValidationError reports the fields that failed local validation.
type ValidationError struct {
	Fields map[Field]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "login: validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, string(field))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[Field(key)])
	}
	return "login: validation failed (" + strings.Join(parts, "; ") + ")"
}

// Message returns the error recorded for field, if any.
func (e *ValidationError) Message(field Field) string {
	if e == nil {
		return ""
	}
	return e.Fields[field]
}
