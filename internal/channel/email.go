package channel

import (
	mail "gopkg.in/mail.v2"
)

// EmailAlerter sends a copy of each fired event to an operator mailbox.
// It sits outside the delivery ledger: failures are logged by the caller,
// never retried.
type EmailAlerter struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
}

func NewEmailAlerter(host string, port int, username, password, from, to string) *EmailAlerter {
	return &EmailAlerter{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
	}
}

func (e *EmailAlerter) Alert(subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	dialer := mail.NewDialer(e.host, e.port, e.username, e.password)
	return dialer.DialAndSend(m)
}
