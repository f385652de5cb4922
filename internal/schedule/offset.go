package schedule

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ParseOffset converts a "±HH:MM" GMT offset into a signed duration.
//
// Only a leading '+' is checked: any other first character yields a
// negative offset. The sign applies to both hours and minutes, so
// "-03:30" is -3h30m. Hour and minute ranges are not validated.
func ParseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, &OffsetError{Value: s, Err: errors.New("empty")}
	}

	sign := time.Duration(-1)
	if s[0] == '+' {
		sign = 1
	}

	parts := strings.Split(s[1:], ":")
	if len(parts) != 2 {
		return 0, &OffsetError{Value: s, Err: errors.New("want HH:MM after sign")}
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, &OffsetError{Value: s, Err: err}
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, &OffsetError{Value: s, Err: err}
	}

	return sign*time.Duration(hours)*time.Hour + sign*time.Duration(minutes)*time.Minute, nil
}
