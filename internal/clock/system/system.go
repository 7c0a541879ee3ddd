// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements recall.Clock in UTC, so derived ISO dates do not depend on the host zone.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
