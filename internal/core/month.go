package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthKey identifies a calendar month as "YYYY-MM".
type MonthKey string

// CurrentMonthKey returns the month key for the given instant in its
// location. Callers inject their clock so tests stay deterministic.
func CurrentMonthKey(now time.Time) MonthKey {
	return MonthKey(now.Format("2006-01"))
}

// ParseMonthKey validates a "YYYY-MM" key with month in 1..12.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, _, err := splitMonthKey(s); err != nil {
		return "", err
	}
	return MonthKey(s), nil
}

// PreviousMonthKey returns the key for the calendar month immediately
// preceding the given one, rolling YYYY-01 back to (YYYY-1)-12.
func PreviousMonthKey(key MonthKey) (MonthKey, error) {
	year, month, err := splitMonthKey(string(key))
	if err != nil {
		return "", err
	}
	month--
	if month == 0 {
		month = 12
		year--
	}
	return MonthKey(fmt.Sprintf("%04d-%02d", year, month)), nil
}

// MonthOfDate extracts the "YYYY-MM" prefix of a "YYYY-MM-DD" date.
func MonthOfDate(date string) (MonthKey, error) {
	date = strings.TrimSpace(date)
	if len(date) < 7 {
		return "", ErrInvalidMonthKey
	}
	return ParseMonthKey(date[:7])
}

func (k MonthKey) String() string { return string(k) }

func splitMonthKey(s string) (year, month int, err error) {
	if len(s) != 7 || s[4] != '-' {
		return 0, 0, ErrInvalidMonthKey
	}
	year, err = strconv.Atoi(s[:4])
	if err != nil || year < 1 {
		return 0, 0, ErrInvalidMonthKey
	}
	month, err = strconv.Atoi(s[5:7])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, ErrInvalidMonthKey
	}
	return year, month, nil
}
