// Package normalize maps the loosely shaped payloads the gateway receives
// (legacy UPPER_SNAKE columns, camelCase, snake_case, numbers sent as strings)
// into one canonical form before they reach the core.
package normalize

import (
	"strings"
	"unicode"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

var knownOperators = map[string]string{
	OperatorKey(models.OperatorMarocTelecom): models.OperatorMarocTelecom,
	OperatorKey(models.OperatorInwi):         models.OperatorInwi,
	OperatorKey(models.OperatorOrange):       models.OperatorOrange,
}

// Phone strips every non-digit: "06-12 34 56 78" becomes "0612345678".
func Phone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ValidPhone(s string) bool {
	return len(s) == 10 && isDigits(s)
}

func ValidActivationCode(s string) bool {
	return len(s) == 4 && isDigits(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// OperatorKey is the comparison form of an operator name.
func OperatorKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Operator returns the canonical spelling of a known operator.
func Operator(s string) (string, bool) {
	canonical, ok := knownOperators[OperatorKey(s)]
	return canonical, ok
}

func KnownOperators() []string {
	return []string{models.OperatorMarocTelecom, models.OperatorInwi, models.OperatorOrange}
}

// Role upper-cases a stored role and repairs the legacy CUSTMER spelling.
func Role(r models.Role) models.Role {
	normalized := models.Role(strings.ToUpper(strings.TrimSpace(string(r))))
	if normalized == "CUSTMER" {
		return models.RoleCustomer
	}
	return normalized
}

// UserStatus upper-cases a stored status.
func UserStatus(s models.UserStatus) models.UserStatus {
	return models.UserStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

// foldKey makes PHONE_NUMBER, phoneNumber, phone-number and phone_number compare equal.
func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
