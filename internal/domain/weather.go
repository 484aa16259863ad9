package domain

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Local-hour windows for the wind averages. AM covers the typical morning
// fishing window, PM the afternoon one.
const (
	amStartHour = 6
	amEndHour   = 11
	pmStartHour = 12
	pmEndHour   = 18
)

// LocalObservationDate returns today's wall-clock date in the given IANA
// zone, at midnight local time. Slicing by UTC or by the host's local zone
// writes records to the wrong day for evening runs, so callers must always
// date records through this function.
func LocalObservationDate(clock clockwork.Clock, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load location %q: %w", tz, err)
	}
	now := clock.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
}

// WindAverages computes the AM (06-11 inclusive) and PM (12-18 inclusive)
// mean wind speeds from hourly points falling on the target local date.
// A window with no contributing points yields nil, never zero.
func WindAverages(hours []WeatherHour, date time.Time) (am, pm *float64) {
	var amSum, pmSum float64
	var amN, pmN int

	for _, h := range hours {
		if !h.HasWind || !sameDate(h.Time, date) {
			continue
		}
		switch hr := h.Time.Hour(); {
		case hr >= amStartHour && hr <= amEndHour:
			amSum += h.WindMPH
			amN++
		case hr >= pmStartHour && hr <= pmEndHour:
			pmSum += h.WindMPH
			pmN++
		}
	}

	if amN > 0 {
		v := amSum / float64(amN)
		am = &v
	}
	if pmN > 0 {
		v := pmSum / float64(pmN)
		pm = &v
	}
	return am, pm
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
