package services

import "time"

// Clock supplies the current time to services so tests can pin it
type Clock func() time.Time

// SystemClock returns the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}
