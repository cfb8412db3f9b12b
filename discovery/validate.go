package discovery

import (
	"fmt"
	"strings"
)

const (
	maxUsernameLen = 128

	minFrequencyHours = 1
	maxFrequencyHours = 24 * 30 // 30 days
)

// validateQueryText validates a query's free-text search string.
func validateQueryText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: search text is required", ErrInvalidInput)
	}
	if len(text) > maxLen {
		return fmt.Errorf("%w: search text exceeds %d characters", ErrInvalidInput, maxLen)
	}
	return nil
}

// validateFrequency validates a scrape cadence in hours.
func validateFrequency(hours int) error {
	if hours < minFrequencyHours || hours > maxFrequencyHours {
		return fmt.Errorf("%w: scrape_frequency_hours must be between %d and %d", ErrInvalidInput, minFrequencyHours, maxFrequencyHours)
	}
	return nil
}

// validateUsername validates a username on user creation.
func validateUsername(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(name) > maxUsernameLen {
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, maxUsernameLen)
	}
	return nil
}
