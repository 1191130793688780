package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
)

// StatusMessage renders the customer-facing title and body of a notification.
func StatusMessage(n domain.Notification, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}

	vehicle := n.Vehicle.DisplayName()
	dealer := n.Dealer.Name
	if dealer == "" {
		dealer = n.Dealer.ID
	}
	when := n.Appointment.Start.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")

	var title, body string
	switch n.Appointment.Status {
	case domain.AppointmentStatusPending:
		title = "Test drive requested"
		body = fmt.Sprintf("We received your test drive request for the %s at %s on %s.", vehicle, dealer, when)
	case domain.AppointmentStatusConfirmed:
		title = "Test drive confirmed"
		body = fmt.Sprintf("Your test drive of the %s at %s on %s is confirmed.", vehicle, dealer, when)
	case domain.AppointmentStatusCompleted:
		title = "Thanks for test driving"
		body = fmt.Sprintf("Thanks for test driving the %s at %s.", vehicle, dealer)
	case domain.AppointmentStatusCancelled:
		title = "Test drive cancelled"
		body = fmt.Sprintf("Your test drive of the %s at %s on %s was cancelled.", vehicle, dealer, when)
		if reason := strings.TrimSpace(n.Appointment.CancelReason); reason != "" {
			body += " Reason: " + reason
		}
	default:
		title = "Test drive update"
		body = fmt.Sprintf("Your test drive of the %s is now %s.", vehicle, n.Appointment.Status)
	}

	if n.Customer.Name != "" {
		body = fmt.Sprintf("Hi %s, %s", n.Customer.Name, lowerFirst(body))
	}
	return title, body
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
