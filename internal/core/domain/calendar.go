package domain

import (
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
)

type DaySummary struct {
	Date         json_types.Date           `json:"date"`
	Total        int                       `json:"total"`
	ByStatus     map[AppointmentStatus]int `json:"byStatus"`
	Appointments []Appointment             `json:"-"`
}

// MonthProjection groups a dealer's appointments of one month by local date.
// It is derived from the store and may be dropped at any time.
type MonthProjection struct {
	DealerID string                          `json:"dealerId"`
	Year     int                             `json:"year"`
	Month    time.Month                      `json:"month"`
	Days     map[json_types.Date]*DaySummary `json:"-"`
	BuiltAt  time.Time                       `json:"builtAt"`
}

func NewMonthProjection(dealerID string, year int, month time.Month) *MonthProjection {
	return &MonthProjection{
		DealerID: dealerID,
		Year:     year,
		Month:    month,
		Days:     make(map[json_types.Date]*DaySummary),
	}
}

// Day returns the summary of date, or an empty one.
func (p *MonthProjection) Day(date json_types.Date) DaySummary {
	if summary, ok := p.Days[date]; ok {
		return *summary
	}
	return DaySummary{Date: date, ByStatus: map[AppointmentStatus]int{}}
}

// Summaries returns all days of the month in order, including empty ones.
func (p *MonthProjection) Summaries() []DaySummary {
	first := json_types.Date{Year: p.Year, Month: p.Month, Day: 1}
	summaries := make([]DaySummary, 0, 31)
	for d := first; d.Month == p.Month; d = d.AddDays(1) {
		summaries = append(summaries, p.Day(d))
	}
	return summaries
}
