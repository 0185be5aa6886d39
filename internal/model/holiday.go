package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidHolidayType = errors.New("model: invalid holiday type")

type HolidayType string

const (
	// HolidayRest is a statutory rest day.
	HolidayRest HolidayType = "holiday"
	// HolidayWorkday is a compensatory working day.
	HolidayWorkday HolidayType = "workday"
)

func (t HolidayType) IsValid() bool {
	return t == HolidayRest || t == HolidayWorkday
}

type Holiday struct {
	Date string
	Type HolidayType
	Name string
}

func (h Holiday) Validate() error {
	if _, err := time.Parse(DateLayout, h.Date); err != nil {
		return fmt.Errorf("%w: holiday date %q: %w", ErrInvalidDate, h.Date, err)
	}
	if !h.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidHolidayType, h.Type)
	}
	return nil
}

// RestDays returns the set of dates classified as statutory rest days.
func RestDays(holidays []Holiday) map[string]bool {
	out := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if h.Type == HolidayRest {
			out[h.Date] = true
		}
	}
	return out
}
