package domain

import (
	"math"
	"sort"
	"time"
)

// NWIS parameter codes.
const (
	ParamFlow        = "00060" // discharge, cubic feet per second
	ParamTemperature = "00010" // water temperature, degrees Celsius at source
	ParamGageHeight  = "00065" // gage height, feet
)

// Feed identifies which NWIS service an observation came from.
type Feed string

const (
	FeedLive    Feed = "live"    // instantaneous values
	FeedDelayed Feed = "delayed" // daily-value summaries
)

// sentinelThreshold: NWIS encodes faults as large negative magic numbers
// (-999999, -9999). Anything at or below this is not a reading.
const sentinelThreshold = -9990

// Temperature sanity bounds, in Celsius.
const (
	minPlausibleC = -5
	maxPlausibleC = 35
)

// SeriesPoint is one valid reading within a parameter's time series.
type SeriesPoint struct {
	ObservedAt time.Time
	Value      float64
	Qualifiers []string
}

// ParamSeries holds the parsed series for one parameter code at one site.
// Latest is nil when the code appeared in the payload but every point was
// sentinel or out of bounds, distinct from the code being absent entirely,
// which is represented by the code missing from ParsedSeries.Params.
type ParamSeries struct {
	Code       string
	Latest     *float64
	ObservedAt time.Time
	Qualifiers []string
	Points     []SeriesPoint // valid points only, ascending by time
}

// ParsedSeries is the typed result of one provider fetch for one site.
// Downstream logic inspects only this structure, never raw provider JSON.
type ParsedSeries struct {
	SiteID string
	Params map[string]ParamSeries
}

// Param looks up a parameter series. The second return distinguishes a code
// the provider never returned from one it returned without usable values.
func (s ParsedSeries) Param(code string) (ParamSeries, bool) {
	p, ok := s.Params[code]
	return p, ok
}

// Codes returns the parameter codes present in the payload, sorted.
func (s ParsedSeries) Codes() []string {
	codes := make([]string, 0, len(s.Params))
	for code := range s.Params {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ValidReading reports whether a raw provider value is usable for the given
// parameter code. Sentinels and non-finite values are rejected for every
// code; temperature additionally enforces the Celsius sanity bounds.
func ValidReading(code string, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	if value <= sentinelThreshold {
		return false
	}
	if code == ParamTemperature && (value < minPlausibleC || value > maxPlausibleC) {
		return false
	}
	return true
}

// CelsiusToFahrenheit converts a water temperature reading.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// HourlyPoint is one merged intraday reading across parameter codes. Not
// authoritative for scoring; kept for trend display.
type HourlyPoint struct {
	ObservedAt time.Time
	FlowCFS    *float64
	TempF      *float64
	GageHeight *float64
}

// MergeHourly combines the flow-site and temperature-site series into
// per-timestamp points, sorted ascending and truncated to the most recent
// max points. Either input may be the zero ParsedSeries.
func MergeHourly(flowSeries, tempSeries ParsedSeries, max int) []HourlyPoint {
	byTime := make(map[time.Time]*HourlyPoint)

	point := func(ts time.Time) *HourlyPoint {
		if p, ok := byTime[ts]; ok {
			return p
		}
		p := &HourlyPoint{ObservedAt: ts}
		byTime[ts] = p
		return p
	}

	if flow, ok := flowSeries.Param(ParamFlow); ok {
		for _, pt := range flow.Points {
			v := pt.Value
			point(pt.ObservedAt).FlowCFS = &v
		}
	}
	if gage, ok := flowSeries.Param(ParamGageHeight); ok {
		for _, pt := range gage.Points {
			v := pt.Value
			point(pt.ObservedAt).GageHeight = &v
		}
	}
	if temp, ok := tempSeries.Param(ParamTemperature); ok {
		for _, pt := range temp.Points {
			v := pt.Value
			point(pt.ObservedAt).TempF = &v
		}
	}

	merged := make([]HourlyPoint, 0, len(byTime))
	for _, p := range byTime {
		merged = append(merged, *p)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ObservedAt.Before(merged[j].ObservedAt)
	})

	if max > 0 && len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged
}
