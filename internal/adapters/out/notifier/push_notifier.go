package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

type PushNotifier struct {
	client   *expo.PushClient
	location *time.Location
	logger   out.LoggerPort
}

var _ out.NotifierPort = (*PushNotifier)(nil)

func NewPushNotifier(cfg *config.Config, logger out.LoggerPort) *PushNotifier {
	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return &PushNotifier{
		client: expo.NewPushClient(&expo.ClientConfig{
			Host:        cfg.Push.Host,
			AccessToken: cfg.Push.AccessToken,
			HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		}),
		location: loc,
		logger:   logger.WithModule("PushNotifier"),
	}
}

func (n *PushNotifier) NotifyStatus(ctx context.Context, notification domain.Notification) error {
	if notification.Customer.PushToken == "" {
		return ErrNoRecipient
	}

	token, err := expo.NewExponentPushToken(notification.Customer.PushToken)
	if err != nil {
		n.logger.Warn("notify.push.invalid_token", out.LogFields{
			"customerId": notification.Customer.ID,
			"error":      err.Error(),
		})
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	title, body := StatusMessage(notification, n.location)
	response, err := n.client.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{token},
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data: map[string]string{
			"appointmentId": notification.Appointment.ID.String(),
			"status":        string(notification.Appointment.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("notify.push.publish_failed: %w", err)
	}
	if err := response.ValidateResponse(); err != nil {
		return fmt.Errorf("notify.push.rejected: %w", err)
	}
	return nil
}
