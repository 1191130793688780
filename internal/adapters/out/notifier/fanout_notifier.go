package notifier

import (
	"context"
	"errors"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

// FanoutNotifier delivers to every channel. A failing channel does not stop
// the others; the joined error reports the failures.
type FanoutNotifier struct {
	notifiers []out.NotifierPort
	logger    out.LoggerPort
}

var _ out.NotifierPort = (*FanoutNotifier)(nil)

func NewFanoutNotifier(logger out.LoggerPort, notifiers ...out.NotifierPort) *FanoutNotifier {
	return &FanoutNotifier{
		notifiers: notifiers,
		logger:    logger.WithModule("FanoutNotifier"),
	}
}

func (f *FanoutNotifier) NotifyStatus(ctx context.Context, notification domain.Notification) error {
	var errs []error
	for _, n := range f.notifiers {
		err := n.NotifyStatus(ctx, notification)
		if errors.Is(err, ErrNoRecipient) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	f.logger.Debug("notify.fanout.done", out.LogFields{
		"appointmentId": notification.Appointment.ID,
		"channels":      len(f.notifiers),
		"failed":        len(errs),
	})
	return errors.Join(errs...)
}
