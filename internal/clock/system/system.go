// Package system provides the wall clock used to timestamp captures.
package system

import (
	"fmt"
	"time"
	_ "time/tzdata" // zones must resolve in minimal containers
)

// Clock returns the current time in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a UTC clock.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewInLocation creates a clock reporting times in the named IANA zone.
// An empty name means UTC.
func NewInLocation(name string) (*Clock, error) {
	if name == "" {
		return New(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}
