package models

import (
	"fmt"
	"time"
)

const DateLayout = time.DateOnly

// ParseDate validates an ISO YYYY-MM-DD calendar date and returns it unchanged.
func ParseDate(s string) (string, error) {
	if len(s) != len(DateLayout) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return s, nil
}
