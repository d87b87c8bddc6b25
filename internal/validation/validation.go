// Package validation enforces input-quality rules on message bodies before
// they are sent. These are guards against accidental input, not security
// controls.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	ErrEmptyBody     = errors.New("message is empty")
	ErrBodyTooLong   = errors.New("message is too long")
	ErrShouting      = errors.New("message is all uppercase")
	ErrRepeatedChars = errors.New("message repeats a character too many times")
)

// Error is a rejected body with a message suitable for showing next to the
// input.
type Error struct {
	Reason  error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Reason
}

// Rules configures the checks.
type Rules struct {
	MaxLength      int
	ShoutingLimit  int
	MaxRepeatedRun int
}

// DefaultRules returns max 2000 characters, at most 12 uppercase letters in
// an all-caps body and at most 8 repeats of one character in a row.
func DefaultRules() Rules {
	return Rules{MaxLength: 2000, ShoutingLimit: 12, MaxRepeatedRun: 8}
}

// Validator checks message bodies.
type Validator struct {
	rules    Rules
	tag      string
	validate *validator.Validate
}

// New creates a validator. Non-positive rule values use the defaults.
func New(rules Rules) *Validator {
	def := DefaultRules()
	if rules.MaxLength <= 0 {
		rules.MaxLength = def.MaxLength
	}
	if rules.ShoutingLimit <= 0 {
		rules.ShoutingLimit = def.ShoutingLimit
	}
	if rules.MaxRepeatedRun <= 0 {
		rules.MaxRepeatedRun = def.MaxRepeatedRun
	}

	validate := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = validate.RegisterValidation("noshout", noShout)
	_ = validate.RegisterValidation("maxrun", maxRun)

	return &Validator{
		rules:    rules,
		tag:      fmt.Sprintf("required,max=%d,noshout=%d,maxrun=%d", rules.MaxLength, rules.ShoutingLimit, rules.MaxRepeatedRun),
		validate: validate,
	}
}

// Body validates a message body and returns it trimmed.
func (v *Validator) Body(body string) (string, error) {
	trimmed := strings.TrimSpace(body)

	err := v.validate.Var(trimmed, v.tag)
	if err == nil {
		return trimmed, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "", fmt.Errorf("validate body: %w", err)
	}
	return "", v.translate(fieldErrs[0])
}

func (v *Validator) translate(fe validator.FieldError) *Error {
	switch fe.Tag() {
	case "required":
		return &Error{Reason: ErrEmptyBody, Message: "Message cannot be empty"}
	case "max":
		return &Error{Reason: ErrBodyTooLong, Message: fmt.Sprintf("Message cannot be longer than %d characters", v.rules.MaxLength)}
	case "noshout":
		return &Error{Reason: ErrShouting, Message: "Please don't write the whole message in capital letters"}
	case "maxrun":
		return &Error{Reason: ErrRepeatedChars, Message: "Message contains too many repeated characters"}
	}
	return &Error{Reason: errors.New(fe.Tag()), Message: fe.Error()}
}

// noShout fails when the field has more uppercase letters than the param and
// no lowercase ones.
func noShout(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return true
	}
	upper, lower := 0, 0
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	return lower > 0 || upper <= limit
}

// maxRun fails when a non-space character repeats more than param times in a
// row.
func maxRun(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return true
	}
	var prev rune
	run := 0
	for _, r := range fl.Field().String() {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			prev, run = r, 1
		}
		if run > limit {
			return false
		}
	}
	return true
}
