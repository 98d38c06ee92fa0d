package models

import (
	"encoding/json"
	"fmt"
	"time"

	"BarLake/pkg/util"
)

// Clock is a time of day with second resolution.
type Clock int32

const day = 24 * 60 * 60

func NewClock(hour, minute, second int) Clock {
	return Clock(hour*3600 + minute*60 + second)
}

// ParseClock accepts HH:MM:SS and HH:MM.
func ParseClock(s string) (Clock, error) {
	secs, ok := util.ParseTimeOfDay(s)
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(secs), nil
}

// ClockOf returns the time of day of t.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute(), t.Second())
}

func (c Clock) Hour() int   { return int(c) / 3600 }
func (c Clock) Minute() int { return int(c) % 3600 / 60 }
func (c Clock) Second() int { return int(c) % 60 }

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

func (c Clock) Valid() bool { return c >= 0 && c < day }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
