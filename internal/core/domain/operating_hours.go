package domain

import (
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
)

// OperatingHours is the resolved {open, close} window of one dealer day.
type OperatingHours struct {
	Date   json_types.Date `json:"date"`
	Open   time.Time       `json:"open"`
	Close  time.Time       `json:"close"`
	Closed bool            `json:"closed"`
	Reason string          `json:"reason,omitempty"`
}

func ClosedDay(date json_types.Date, reason string) OperatingHours {
	return OperatingHours{Date: date, Closed: true, Reason: reason}
}

func (h OperatingHours) Window() time.Duration {
	if h.Closed || !h.Open.Before(h.Close) {
		return 0
	}
	return h.Close.Sub(h.Open)
}
