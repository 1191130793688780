package domain

import "time"

type AppointmentEventType string

const (
	AppointmentEventCreated       AppointmentEventType = "created"
	AppointmentEventStatusChanged AppointmentEventType = "status_changed"
)

// AppointmentEvent describes a committed write to the appointment store.
type AppointmentEvent struct {
	Type        AppointmentEventType `json:"type"`
	Source      string               `json:"source"`
	Appointment Appointment          `json:"appointment"`
	OccurredAt  time.Time            `json:"occurredAt"`
}

// Notification is what the customer is told after a status change.
type Notification struct {
	Appointment Appointment `json:"appointment"`
	Customer    Customer    `json:"customer"`
	Vehicle     Vehicle     `json:"vehicle"`
	Dealer      Dealer      `json:"dealer"`
}
