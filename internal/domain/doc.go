// Package domain models river telemetry observations and the rules for
// reconciling them into daily records.
//
// # Data Sources
//
// Streamflow, water temperature, and gage height come from the USGS National
// Water Information System (NWIS). Two services are used:
//
//	Instantaneous Values ("live feed")  — near-real-time readings, typically
//	  every 15 minutes, served at https://waterservices.usgs.gov/nwis/iv/.
//	Daily Values ("delayed feed")       — daily summaries, published with a
//	  lag of a day or more but more reliably backfilled, at /nwis/dv/.
//
// Weather (wind, precipitation, daily temperature extremes) comes from the
// Open-Meteo forecast API, queried per river coordinate with explicit units
// and the river's IANA time zone.
//
// # NWIS Conventions
//
// Parameter codes:
//
//	00060  discharge (streamflow), cubic feet per second
//	00010  water temperature, degrees Celsius
//	00065  gage height, feet
//
// Sentinel values:
//
//	Readings at or below -9990 (commonly -999999) mark equipment faults or
//	ice-affected periods. They are filtered during parsing and never surface
//	as observation values.
//
// Temperature sanity bound:
//
//	Celsius readings outside [-5, 35] are instrument glitches for the rivers
//	this system covers and are treated as absent. Valid readings are
//	converted to Fahrenheit at parse time; nothing downstream sees Celsius.
//
// # Station Roles
//
// A river may trust different stations for different measured quantities.
// A role names the quantity: flow, temperature, or stage. Role mappings are
// ranked (priority 1 is most trusted) and a river may carry several per
// role. Temperature deliberately has no generic fallback: a river without a
// temperature mapping reports "no_temp_site_mapping" rather than borrowing
// the flow station, because flow instrumentation is near-universal while
// temperature sensors are not.
//
// # Freshness
//
// An observation is fresh when its timestamp is within the feed's window:
// 72 hours against the live feed, 240 hours against the delayed feed (daily
// summaries lag by design). Stale values are still persisted, flagged by a
// reason code and a "_stale" source-kind suffix, so the scoring stage can
// choose between stale-but-present and absent.
package domain
