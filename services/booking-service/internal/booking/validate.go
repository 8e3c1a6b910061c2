package booking

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

const (
	maxNameLen    = 100
	maxEmailLen   = 254
	maxPhoneLen   = 32
	maxCompanyLen = 200
	maxMessageLen = 2000
)

// normalizeRequester trims every field and validates the result.
func normalizeRequester(r model.Requester) (model.Requester, error) {
	r = model.Requester{
		Name:    strings.TrimSpace(r.Name),
		Email:   strings.TrimSpace(r.Email),
		Phone:   strings.TrimSpace(r.Phone),
		Company: strings.TrimSpace(r.Company),
		Message: strings.TrimSpace(r.Message),
	}
	switch {
	case r.Name == "":
		return r, model.Invalid("requester.name", "is required")
	case utf8.RuneCountInString(r.Name) > maxNameLen:
		return r, model.Invalid("requester.name", "must be at most %d characters", maxNameLen)
	case strings.ContainsAny(r.Name, "\r\n"):
		return r, model.Invalid("requester.name", "must be a single line")
	}

	if r.Email == "" {
		return r, model.Invalid("requester.email", "is required")
	}
	if len(r.Email) > maxEmailLen {
		return r, model.Invalid("requester.email", "is too long")
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return r, model.Invalid("requester.email", "is not a valid email address")
	}

	if r.Phone != "" {
		if len(r.Phone) > maxPhoneLen || !validPhone(r.Phone) {
			return r, model.Invalid("requester.phone", "may contain only digits, spaces and +-() and be at most %d characters", maxPhoneLen)
		}
	}
	if utf8.RuneCountInString(r.Company) > maxCompanyLen {
		return r, model.Invalid("requester.company", "must be at most %d characters", maxCompanyLen)
	}
	if utf8.RuneCountInString(r.Message) > maxMessageLen {
		return r, model.Invalid("requester.message", "must be at most %d characters", maxMessageLen)
	}
	return r, nil
}

func validPhone(s string) bool {
	digits := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == ' ' || c == '+' || c == '-' || c == '(' || c == ')':
		default:
			return false
		}
	}
	return digits > 0
}
