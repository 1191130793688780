package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"gopkg.in/gomail.v2"
)

var ErrNoRecipient = errors.New("customer has no address for this channel")

type EmailNotifier struct {
	dialer   *gomail.Dialer
	from     string
	location *time.Location
	logger   out.LoggerPort
}

var _ out.NotifierPort = (*EmailNotifier)(nil)

func NewEmailNotifier(cfg *config.Config, logger out.LoggerPort) *EmailNotifier {
	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return &EmailNotifier{
		dialer:   gomail.NewDialer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password),
		from:     cfg.Mail.From,
		location: loc,
		logger:   logger.WithModule("EmailNotifier"),
	}
}

func (n *EmailNotifier) NotifyStatus(ctx context.Context, notification domain.Notification) error {
	if notification.Customer.Email == "" {
		return ErrNoRecipient
	}

	m := n.Message(notification)

	// gomail has no context support; give up early if the caller already did.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.dialer.DialAndSend(m); err != nil {
		n.logger.Error("notify.email.send_failed", out.LogFields{
			"appointmentId": notification.Appointment.ID,
			"error":         err.Error(),
		})
		return err
	}
	return nil
}

func (n *EmailNotifier) Message(notification domain.Notification) *gomail.Message {
	title, body := StatusMessage(notification, n.location)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", notification.Customer.Email, notification.Customer.Name)
	m.SetHeader("Subject", title)
	m.SetBody("text/plain", body)
	return m
}
