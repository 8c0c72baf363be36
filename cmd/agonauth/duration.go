package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Parse lifetime as Go duration ("15m", "1h30m"), days ("7d") or bare seconds ("900")
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid days duration %q", s)
		}
		return time.Duration(n) * day, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return time.ParseDuration(s)
}

// pflag.Value over parseDuration
type durationValue struct {
	d *time.Duration
}

func newDurationValue(d *time.Duration) *durationValue {
	return &durationValue{d: d}
}

func (v *durationValue) Set(s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return err
	}
	*v.d = d
	return nil
}

func (v *durationValue) String() string {
	if v.d == nil {
		return ""
	}
	if *v.d > 0 && *v.d%day == 0 {
		return fmt.Sprintf("%dd", *v.d/day)
	}
	return v.d.String()
}

func (v *durationValue) Type() string {
	return "duration"
}
