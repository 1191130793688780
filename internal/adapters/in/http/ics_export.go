package http

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
)

var icsStatus = map[domain.AppointmentStatus]string{
	domain.AppointmentStatusPending:   "TENTATIVE",
	domain.AppointmentStatusConfirmed: "CONFIRMED",
	domain.AppointmentStatusCompleted: "CONFIRMED",
	domain.AppointmentStatusCancelled: "CANCELLED",
}

// RenderMonthICS exports a dealer month as an iCalendar document, one
// VEVENT per appointment.
func RenderMonthICS(projection *domain.MonthProjection) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//testdrive-scheduler//dealer calendar//EN")
	cal.SetName(fmt.Sprintf("Test drives %s %04d-%02d", projection.DealerID, projection.Year, projection.Month))

	stamp := projection.BuiltAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, day := range projection.Summaries() {
		for _, appointment := range day.Appointments {
			event := cal.AddEvent(appointment.ID.String() + "@testdrive-scheduler")
			event.SetDtStampTime(stamp.UTC())
			event.SetCreatedTime(appointment.CreatedAt.UTC())
			event.SetStartAt(appointment.Start.UTC())
			event.SetEndAt(appointment.End().UTC())
			event.SetSummary(fmt.Sprintf("Test drive: vehicle %s", appointment.VehicleID))
			event.SetDescription(describe(appointment))
			event.SetProperty(ical.ComponentPropertyStatus, icsStatus[appointment.Status])
		}
	}

	return cal.Serialize()
}

func describe(a domain.Appointment) string {
	lines := []string{
		"Customer: " + a.CustomerID,
		"Status: " + string(a.Status),
	}
	if a.Note != "" {
		lines = append(lines, "Note: "+a.Note)
	}
	if a.CancelReason != "" {
		lines = append(lines, "Cancel reason: "+a.CancelReason)
	}
	return strings.Join(lines, "\n")
}
