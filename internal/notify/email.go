// Package notify отправляет уведомления пользователям о бронированиях.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Sender описывает контракт отправки письма.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender отправляет письма через SMTP без аутентификации.
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender создаёт отправитель писем для указанного SMTP-сервера.
func NewSMTPSender(host, port, from string) *SMTPSender {
	if from == "" {
		from = "no-reply@dukamart.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", strings.TrimSpace(host), strings.TrimSpace(port)),
		from: strings.TrimSpace(from),
	}
}

// Send отправляет письмо одним SMTP-вызовом.
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.from, to, subject, body,
	)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

// BookingConfirmation формирует текст письма-подтверждения бронирования.
func BookingConfirmation(firstName, serviceName string, start, end time.Time, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName)
	fmt.Fprintf(&b, "Your booking for %s is confirmed.\n", serviceName)
	fmt.Fprintf(&b, "Start: %s\n", start.Format("Monday, 2 Jan 2006 15:04"))
	fmt.Fprintf(&b, "End:   %s\n", end.Format("Monday, 2 Jan 2006 15:04"))
	if code != "" {
		fmt.Fprintf(&b, "\nPresent code %s (or the attached QR code) at the store.\n", code)
	}
	b.WriteString("\nThank you for booking with DukaMart.\n")
	return b.String()
}
