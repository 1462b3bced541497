package tools

import (
	"fmt"
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "\t", "")

// ValidatePhoneNumber strips spaces and dashes and checks the E.164 shape.
// It returns the normalized number.
func ValidatePhoneNumber(raw string) (string, error) {
	normalized := phoneSeparators.Replace(raw)
	if normalized == "" || !e164Pattern.MatchString(normalized) {
		return "", &ValidationError{
			Tool:    "makePhoneCall",
			Field:   "phoneNumber",
			Message: fmt.Sprintf("Invalid Phone Number: '%s'. You MUST ask the user for the correct phone number before calling. Do not guess.", raw),
		}
	}
	return normalized, nil
}
