package usgs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
)

// NWIS response types. The service nests the interesting data four levels
// deep; these structs exist so the rest of the system never touches the raw
// shape; parseTimeSeries is the single place provider JSON is inspected.

type timeSeriesResponse struct {
	Value struct {
		TimeSeries []timeSeries `json:"timeSeries"`
	} `json:"value"`
}

type timeSeries struct {
	SourceInfo struct {
		SiteCode []codedValue `json:"siteCode"`
	} `json:"sourceInfo"`
	Variable struct {
		VariableCode []codedValue `json:"variableCode"`
	} `json:"variable"`
	Values []struct {
		Value []rawPoint `json:"value"`
	} `json:"values"`
}

type codedValue struct {
	Value string `json:"value"`
}

type rawPoint struct {
	Value      string   `json:"value"`
	Qualifiers []string `json:"qualifiers"`
	DateTime   string   `json:"dateTime"`
}

// Timestamp layouts seen across the two services: the live feed carries a
// zone offset, the daily feed does not (its dates are civil days).
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05.000-07:00",
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// parseTimeSeries flattens a provider payload into typed per-parameter
// series for one site. Sentinel and out-of-bounds readings are dropped;
// temperature is converted to Fahrenheit. A parameter code that appears in
// the payload but yields no usable reading stays in the map with a nil
// Latest — "present but absent" informs the unavailability reasons and is
// not the same as the code missing entirely.
func parseTimeSeries(siteID string, payload timeSeriesResponse) domain.ParsedSeries {
	out := domain.ParsedSeries{
		SiteID: siteID,
		Params: make(map[string]domain.ParamSeries),
	}

	for _, ts := range payload.Value.TimeSeries {
		if len(ts.Variable.VariableCode) == 0 {
			continue
		}
		if site := seriesSite(ts); site != "" && site != siteID {
			continue
		}
		code := ts.Variable.VariableCode[0].Value
		if code == "" {
			continue
		}

		series := out.Params[code]
		series.Code = code

		for _, block := range ts.Values {
			for _, p := range block.Value {
				pt, ok := parsePoint(code, p)
				if !ok {
					continue
				}
				series.Points = append(series.Points, pt)
			}
		}

		sort.Slice(series.Points, func(i, j int) bool {
			return series.Points[i].ObservedAt.Before(series.Points[j].ObservedAt)
		})
		if n := len(series.Points); n > 0 {
			last := series.Points[n-1]
			v := last.Value
			series.Latest = &v
			series.ObservedAt = last.ObservedAt
			series.Qualifiers = last.Qualifiers
		}

		out.Params[code] = series
	}

	return out
}

func seriesSite(ts timeSeries) string {
	if len(ts.SourceInfo.SiteCode) == 0 {
		return ""
	}
	return ts.SourceInfo.SiteCode[0].Value
}

// parsePoint validates and converts one raw reading. Returns false for
// unparseable, sentinel, and out-of-bounds values, all of which are normal
// absence, never errors.
func parsePoint(code string, p rawPoint) (domain.SeriesPoint, bool) {
	raw := strings.TrimSpace(p.Value)
	if raw == "" {
		return domain.SeriesPoint{}, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return domain.SeriesPoint{}, false
	}
	if !domain.ValidReading(code, v) {
		return domain.SeriesPoint{}, false
	}

	observedAt, ok := parseDateTime(p.DateTime)
	if !ok {
		return domain.SeriesPoint{}, false
	}

	if code == domain.ParamTemperature {
		v = domain.CelsiusToFahrenheit(v)
	}

	return domain.SeriesPoint{
		ObservedAt: observedAt,
		Value:      v,
		Qualifiers: p.Qualifiers,
	}, true
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
