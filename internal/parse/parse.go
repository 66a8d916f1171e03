package parse

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidTime     = errors.New("invalid time: use RFC3339 or YYYY-MM-DD")
	ErrInvalidAddress  = errors.New("invalid stream address")
	ErrInvalidLifetime = errors.New("invalid lifetime")
	ErrInvalidID       = errors.New("invalid id")
)

var streamSchemes = map[string]bool{
	"rtsp":  true,
	"rtsps": true,
	"rtmp":  true,
	"http":  true,
	"https": true,
}

// TimeBound parses a gallery filter bound. An RFC3339 value is used as is. A
// bare date expands to the first instant of that day in loc, or the last one
// when upper is set, so both ends stay inclusive. Empty input yields nil.
func TimeBound(raw string, loc *time.Location, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}

	day, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}

// StreamAddress checks that raw is an absolute URL with a supported scheme
// and a host, and returns it trimmed.
func StreamAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !streamSchemes[strings.ToLower(u.Scheme)] {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}
	return raw, nil
}

// Lifetime parses a token lifetime in seconds. Empty input yields def.
func Lifetime(raw string, def, max int) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Duration(def) * time.Second, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("%w: must be an integer between 1 and %d", ErrInvalidLifetime, max)
	}
	return time.Duration(n) * time.Second, nil
}

// ID parses a positive integer identifier.
func ID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}
