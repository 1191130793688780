package domain

import "time"

// Slot is a bookable candidate interval. It is computed, never stored.
type Slot struct {
	DealerID        string    `json:"dealerId"`
	VehicleID       string    `json:"vehicleId"`
	StartTime       time.Time `json:"begin"`
	EndTime         time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
}
