// Package mailer relays HTML email through a configurable SMTP host.
package mailer

import (
	"encoding/base64"
	"io"
	"net/mail"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the default relay settings; a request may override them.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string // tls or ssl
	FromEmail  string
	FromName   string
}

type SMTPSettings struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Encryption string `json:"encryption"`
	FromEmail  string `json:"from_email"`
	FromName   string `json:"from_name"`
}

type SendRequest struct {
	To               string        `json:"to"`
	Subject          string        `json:"subject"`
	Body             string        `json:"body"`
	AttachmentBase64 string        `json:"attachment_base64,omitempty"`
	AttachmentName   string        `json:"attachment_name,omitempty"`
	SMTPSettings     *SMTPSettings `json:"smtp_settings,omitempty"`
}

// Validate returns field-level messages for a 422 response; empty map means
// the request is well formed.
func (r *SendRequest) Validate() map[string]string {
	fields := map[string]string{}
	if _, err := mail.ParseAddress(r.To); err != nil {
		fields["to"] = "a valid recipient address is required"
	}
	if r.Subject == "" {
		fields["subject"] = "subject is required"
	}
	if r.Body == "" {
		fields["body"] = "body is required"
	}
	if r.AttachmentBase64 != "" {
		if r.AttachmentName == "" {
			fields["attachment_name"] = "attachment_name is required with attachment_base64"
		}
		if _, err := base64.StdEncoding.DecodeString(r.AttachmentBase64); err != nil {
			fields["attachment_base64"] = "attachment must be valid base64"
		}
	}
	if s := r.SMTPSettings; s != nil {
		if s.Host == "" {
			fields["smtp_settings.host"] = "host is required"
		}
		if s.Port <= 0 {
			fields["smtp_settings.port"] = "port is required"
		}
		if s.Encryption != "tls" && s.Encryption != "ssl" {
			fields["smtp_settings.encryption"] = "encryption must be tls or ssl"
		}
		if _, err := mail.ParseAddress(s.FromEmail); err != nil {
			fields["smtp_settings.from_email"] = "a valid from_email is required"
		}
	}
	return fields
}

type Service struct {
	cfg SMTPConfig
}

func NewService(cfg SMTPConfig) *Service {
	return &Service{cfg: cfg}
}

// Send relays one message, applying any per-request SMTP override. The
// attachment stays in memory; nothing is written to disk.
func (s *Service) Send(req *SendRequest) error {
	cfg := s.cfg
	if o := req.SMTPSettings; o != nil {
		cfg = SMTPConfig{
			Host:       o.Host,
			Port:       o.Port,
			Username:   o.Username,
			Password:   o.Password,
			Encryption: o.Encryption,
			FromEmail:  o.FromEmail,
			FromName:   o.FromName,
		}
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", cfg.FromEmail, cfg.FromName)
	m.SetHeader("To", req.To)
	m.SetHeader("Subject", req.Subject)
	m.SetBody("text/html", req.Body)

	if req.AttachmentBase64 != "" && req.AttachmentName != "" {
		data, err := base64.StdEncoding.DecodeString(req.AttachmentBase64)
		if err != nil {
			return err
		}
		m.Attach(req.AttachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Encryption == "ssl"
	return d.DialAndSend(m)
}
