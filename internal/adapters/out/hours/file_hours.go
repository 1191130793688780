package hours

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// closureEpoch anchors recurring closures that do not set their own start.
var closureEpoch = json_types.Date{Year: 2020, Month: time.January, Day: 1}

type DayHours struct {
	Open   *json_types.Clock `yaml:"open"`
	Close  *json_types.Clock `yaml:"close"`
	Closed bool              `yaml:"closed"`
}

type Holiday struct {
	Date   json_types.Date `yaml:"date"`
	Reason string          `yaml:"reason"`
}

// Closure is a recurring closed day, e.g. "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25".
type Closure struct {
	RRule  string          `yaml:"rrule"`
	Start  json_types.Date `yaml:"start"`
	Reason string          `yaml:"reason"`
}

type DealerHours struct {
	Timezone string              `yaml:"timezone"`
	Weekly   map[string]DayHours `yaml:"weekly"`
	Holidays []Holiday           `yaml:"holidays"`
	Closures []Closure           `yaml:"closures"`
}

// HoursFile is the document read from SCHEDULING_HOURS_FILE. Dealers not
// listed use Default; a listed dealer inherits Default's weekdays it does
// not set.
type HoursFile struct {
	Default *DealerHours           `yaml:"default"`
	Dealers map[string]DealerHours `yaml:"dealers"`
}

type closure struct {
	rule   *rrule.RRule
	reason string
}

type schedule struct {
	location *time.Location
	weekly   map[time.Weekday]DayHours
	holidays map[json_types.Date]string
	closures []closure

	// kept so dealers inheriting them recompile in their own timezone
	closureSpecs []Closure
}

// FileHours serves operating hours from a parsed HoursFile. It is
// immutable after construction.
type FileHours struct {
	fallback *schedule
	dealers  map[string]*schedule
	logger   out.LoggerPort
}

var _ out.OperatingHoursPort = (*FileHours)(nil)

func LoadFile(path string, logger out.LoggerPort) (*FileHours, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hours.file.read_failed: %w", err)
	}

	h, err := Parse(data, logger)
	if err != nil {
		return nil, err
	}

	h.logger.Info("hours.file.loaded", out.LogFields{
		"path":    path,
		"dealers": len(h.dealers),
	})
	return h, nil
}

func Parse(data []byte, logger out.LoggerPort) (*FileHours, error) {
	var file HoursFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("hours.file.parse_failed: %w", err)
	}
	return New(file, logger)
}

func New(file HoursFile, logger out.LoggerPort) (*FileHours, error) {
	h := &FileHours{
		dealers: make(map[string]*schedule, len(file.Dealers)),
		logger:  logger.WithModule("FileHours"),
	}

	if file.Default != nil {
		fallback, err := compile(*file.Default, nil)
		if err != nil {
			return nil, fmt.Errorf("hours.default.invalid: %w", err)
		}
		h.fallback = fallback
	}

	for dealerID, dealer := range file.Dealers {
		compiled, err := compile(dealer, h.fallback)
		if err != nil {
			return nil, fmt.Errorf("hours.dealer.invalid: %s: %w", dealerID, err)
		}
		h.dealers[dealerID] = compiled
	}

	return h, nil
}

func (h *FileHours) Location(ctx context.Context, dealerID string) (*time.Location, error) {
	s, err := h.scheduleFor(dealerID)
	if err != nil {
		return nil, err
	}
	return s.location, nil
}

func (h *FileHours) HoursFor(ctx context.Context, dealerID string, date json_types.Date) (domain.OperatingHours, error) {
	s, err := h.scheduleFor(dealerID)
	if err != nil {
		return domain.OperatingHours{}, err
	}

	if reason, ok := s.holidays[date]; ok {
		return domain.ClosedDay(date, reason), nil
	}

	dayStart := date.In(s.location)
	dayEnd := date.AddDays(1).In(s.location).Add(-time.Second)
	for _, c := range s.closures {
		if len(c.rule.Between(dayStart, dayEnd, true)) > 0 {
			return domain.ClosedDay(date, c.reason), nil
		}
	}

	day, ok := s.weekly[dayStart.Weekday()]
	if !ok || day.Closed || day.Open == nil || day.Close == nil {
		return domain.ClosedDay(date, "closed on "+strings.ToLower(dayStart.Weekday().String())), nil
	}

	return domain.OperatingHours{
		Date:  date,
		Open:  day.Open.On(date, s.location),
		Close: day.Close.On(date, s.location),
	}, nil
}

func (h *FileHours) scheduleFor(dealerID string) (*schedule, error) {
	if s, ok := h.dealers[dealerID]; ok {
		return s, nil
	}
	if h.fallback != nil {
		return h.fallback, nil
	}
	return nil, domain.NewValidationError("dealerId", fmt.Sprintf("no operating hours for dealer %q", dealerID))
}

func compile(dealer DealerHours, fallback *schedule) (*schedule, error) {
	s := &schedule{
		location: time.UTC,
		weekly:   make(map[time.Weekday]DayHours, 7),
		holidays: make(map[json_types.Date]string, len(dealer.Holidays)),
	}

	if fallback != nil {
		s.location = fallback.location
		for weekday, day := range fallback.weekly {
			s.weekly[weekday] = day
		}
		for date, reason := range fallback.holidays {
			s.holidays[date] = reason
		}
		s.closureSpecs = append(s.closureSpecs, fallback.closureSpecs...)
	}

	if dealer.Timezone != "" {
		loc, err := time.LoadLocation(dealer.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", dealer.Timezone, err)
		}
		s.location = loc
	}

	for name, day := range dealer.Weekly {
		weekday, ok := parseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		if !day.Closed {
			if day.Open == nil || day.Close == nil {
				return nil, fmt.Errorf("%s: open and close are required", name)
			}
			if day.Open.Minutes() >= day.Close.Minutes() {
				return nil, fmt.Errorf("%s: open %s is not before close %s", name, day.Open, day.Close)
			}
		}
		s.weekly[weekday] = day
	}

	for _, holiday := range dealer.Holidays {
		if holiday.Date.IsZero() {
			return nil, errors.New("holiday without date")
		}
		reason := holiday.Reason
		if reason == "" {
			reason = "holiday"
		}
		s.holidays[holiday.Date] = reason
	}

	s.closureSpecs = append(s.closureSpecs, dealer.Closures...)
	for _, c := range s.closureSpecs {
		rule, err := rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(c.RRule), "RRULE:"))
		if err != nil {
			return nil, fmt.Errorf("closure rrule %q: %w", c.RRule, err)
		}

		start := c.Start
		if start.IsZero() {
			start = closureEpoch
		}
		rule.DTStart(start.In(s.location))

		reason := c.Reason
		if reason == "" {
			reason = "closed"
		}
		s.closures = append(s.closures, closure{rule: rule, reason: reason})
	}

	return s, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, true
	case "monday", "mon":
		return time.Monday, true
	case "tuesday", "tue":
		return time.Tuesday, true
	case "wednesday", "wed":
		return time.Wednesday, true
	case "thursday", "thu":
		return time.Thursday, true
	case "friday", "fri":
		return time.Friday, true
	case "saturday", "sat":
		return time.Saturday, true
	default:
		return 0, false
	}
}
