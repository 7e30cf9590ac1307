package candle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseInterval supports the compact suffix notation used throughout the
// exchange adapters: a positive integer followed by one of s/m/h/d/w.
func parseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return 0, fmt.Errorf("candle: empty interval")
	}

	unit := interval[len(interval)-1:]
	numPart := interval[:len(interval)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("candle: invalid interval %q", interval)
	}

	switch unit {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("candle: unsupported interval unit %q", interval)
	}
}

// BucketStart truncates t to the start of the interval-aligned bucket that
// contains it, anchored at the Unix epoch.
func BucketStart(t time.Time, interval string) (time.Time, error) {
	d, err := parseInterval(interval)
	if err != nil {
		return time.Time{}, err
	}
	return t.Truncate(d), nil
}
