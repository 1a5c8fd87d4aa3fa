package types

import (
	"fmt"
	"strings"
	"time"
)

type Interval string

const (
	OneMinute      Interval = "1"
	FiveMinutes    Interval = "5"
	FifteenMinutes Interval = "15"
	ThirtyMinutes  Interval = "30"
	Hour           Interval = "60"
	FourHours      Interval = "240"
	Day            Interval = "D"
	Week           Interval = "W"
	Month          Interval = "M"
)

var IntervalToTime = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	FiveMinutes:    time.Minute * 5,
	FifteenMinutes: time.Minute * 15,
	ThirtyMinutes:  time.Minute * 30,
	Hour:           time.Hour,
	FourHours:      time.Hour * 4,
	Day:            time.Hour * 24,
	Week:           time.Hour * 24 * 7,
}

var ConvertInterval = map[string]Interval{
	"1":   OneMinute,
	"1m":  OneMinute,
	"5":   FiveMinutes,
	"5m":  FiveMinutes,
	"15":  FifteenMinutes,
	"15m": FifteenMinutes,
	"30":  ThirtyMinutes,
	"30m": ThirtyMinutes,
	"60":  Hour,
	"1h":  Hour,
	"240": FourHours,
	"4h":  FourHours,
	"d":   Day,
	"1d":  Day,
	"w":   Week,
	"1w":  Week,
	"m":   Month,
	"1mo": Month,
}

// ParseInterval accepts both the short codes used by the database layer
// ("D", "60") and the frequency names used in configs ("1d", "1h").
func ParseInterval(s string) (Interval, error) {
	iv, ok := ConvertInterval[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

func (i Interval) IsIntraday() bool {
	d, ok := IntervalToTime[i]
	return ok && d < 24*time.Hour
}
