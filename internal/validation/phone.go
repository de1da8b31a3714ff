// Package validation содержит проверки входных данных сервиса DukaMart.
package validation

import (
	"errors"
	"strings"
)

// ErrInvalidPhone возвращается, если номер телефона не удаётся привести к международному формату.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone приводит кенийский номер телефона к форме 254XXXXXXXXX,
// в которой его принимает платёжный шлюз. Допустимые входные формы:
// "+2547...", "2547...", "07..." и "01...".
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	cleaned = strings.TrimPrefix(cleaned, "+")

	switch {
	case strings.HasPrefix(cleaned, "254"):
		// уже в международном формате
	case strings.HasPrefix(cleaned, "07"), strings.HasPrefix(cleaned, "01"):
		cleaned = "254" + cleaned[1:]
	default:
		return "", ErrInvalidPhone
	}

	if len(cleaned) != 12 || !isDigits(cleaned) {
		return "", ErrInvalidPhone
	}

	return cleaned, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
