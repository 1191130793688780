package json_types

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Clock is a wall-clock time of day, e.g. a dealer's opening time.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(str string) (Clock, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if parsed, err := time.Parse(layout, str); err == nil {
			return Clock{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
		}
	}
	return Clock{}, fmt.Errorf("failed to parse time: %q", str)
}

// On places the clock on day d in loc.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	parsed, err := ParseClock(str)
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseClock(node.Value)
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}
