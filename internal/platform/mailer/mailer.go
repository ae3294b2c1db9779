package mailer

import "github.com/diagnosis/visitorgate/pkg/config"

// New renders visitor e-mails onto the transport selected by cfg.
func New(cfg config.EmailConfig) Service {
	return NewVisitorMailer(NewTransport(cfg))
}

// NewTransport picks the dev logger, MailerSend or SMTP.
func NewTransport(cfg config.EmailConfig) Transport {
	switch {
	case cfg.DevMode:
		return DevTransport{}
	case cfg.MailerSendKey != "":
		return NewMailerSendTransport(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}
