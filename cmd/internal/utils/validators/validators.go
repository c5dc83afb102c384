package validators

import (
	"reflect"
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	ReferralCodeMinLength = 6
	ReferralCodeMaxLength = 16
)

// Base58 alphabet, as produced by snowflake.ID.Base58.
var refCodeRegex = regexp.MustCompile(`^[1-9a-km-zA-HJ-NP-Z]+$`)

// Register adds the custom tags used by the request contracts.
func Register(validate *validator.Validate) {
	_ = validate.RegisterValidation("refcode", RefCode)
	_ = validate.RegisterValidation("noctrl", NoControlChars)
}

// RefCode accepts strings that could have been generated as a referral code.
func RefCode(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}

	code := field.String()
	if len(code) < ReferralCodeMinLength || len(code) > ReferralCodeMaxLength {
		return false
	}
	return refCodeRegex.MatchString(code)
}

// NoControlChars returns false if the string contains any control character (rejecting the user input).
func NoControlChars(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}

	for _, ch := range field.String() {
		if unicode.IsControl(ch) {
			return false
		}
	}
	return true
}
