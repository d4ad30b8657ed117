package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationRegex = regexp.MustCompile(`^(\d+)\s*(ms|d|h|m|s)$`)

// ParseDuration parses a config duration such as "10s", "15m", "12h" or "7d".
// "d" is not understood by time.ParseDuration, which is why this exists.
// "0" is allowed and returns a zero duration.
func ParseDuration(durationStr string) (time.Duration, error) {
	trimmedStr := strings.TrimSpace(durationStr)
	if trimmedStr == "0" {
		return 0, nil
	}

	matches := durationRegex.FindStringSubmatch(trimmedStr)
	if len(matches) < 3 {
		return 0, fmt.Errorf("invalid duration format: %q", durationStr)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration number: %s", matches[1])
	}

	switch matches[2] {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "s":
		return time.Duration(value) * time.Second, nil
	case "ms":
		return time.Duration(value) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("unsupported duration unit: %s", matches[2])
	}
}
