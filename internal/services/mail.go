package services

import (
	"context"
	"fmt"
	"io"

	gomail "gopkg.in/gomail.v2"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/utils"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type MailService interface {
	Send(ctx context.Context, to, subject, htmlBody string, attachments []Attachment) error
}

type mailService struct {
	log    *logger.Logger
	dialer *gomail.Dialer
	from   string
}

func NewMailService(log *logger.Logger) MailService {
	serviceLog := log.With("service", "MailService")
	host := utils.GetEnv("SMTP_HOST", "localhost", log)
	port := utils.GetEnvAsInt("SMTP_PORT", 587, log)
	user := utils.GetEnv("SMTP_USER", "", log)
	pass := utils.GetEnv("SMTP_PASS", "", log)
	from := utils.GetEnv("EMAIL_FROM", "no-reply@testschool.local", log)
	return &mailService{
		log:    serviceLog,
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   from,
	}
}

func (ms *mailService) Send(ctx context.Context, to, subject, htmlBody string, attachments []Attachment) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", ms.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	for _, att := range attachments {
		data := att.Data
		msg.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	if err := ms.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("Failed to send mail to %s: %w", to, err)
	}
	return nil
}
