package service

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	minPasswordLen = 4
	maxPasswordLen = 32
)

var (
	usernameRe = regexp.MustCompile(`^[0-9a-zA-Z]+$`)
	emailRe    = regexp.MustCompile(`^[^@]+@\w+(\.\w+)+\w$`)
)

// check is one field rule set. Checks run in the order given and the
// first failing one is reported.
type check struct {
	field string
	value interface{}
	rules []validation.Rule
}

func on(field string, value interface{}, rules ...validation.Rule) check {
	return check{field: field, value: value, rules: rules}
}

func firstViolation(checks ...check) error {
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			return validationErr(c.field, err.Error())
		}
	}
	return nil
}

func required(what string) validation.Rule {
	return validation.Required.Error(what + " is required")
}

var (
	usernameRule = validation.Match(usernameRe).Error("username may contain only latin letters and digits")
	emailRule    = validation.Match(emailRe).Error("email is not a valid address")
	passwordRule = validation.RuneLength(minPasswordLen, maxPasswordLen).Error("password must be between 4 and 32 characters")
)

func sameAs(other, reason string) validation.Rule {
	return validation.By(func(value interface{}) error {
		if s, _ := value.(string); s != other {
			return errors.New(reason)
		}
		return nil
	})
}
