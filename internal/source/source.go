// Package source holds the per-source timezone table used to turn terminal
// candle times into timezone-aware storage timestamps.
package source

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnknownSource   = errors.New("unknown source")
	ErrAmbiguousTime   = errors.New("ambiguous local time")
	ErrNonexistentTime = errors.New("nonexistent local time")
	ErrEpochOutOfRange = errors.New("epoch time out of range")
)

// Stored times are limited to years 1 through 9999, the range BSON dates and
// timestamptz round-trip without loss.
var (
	minStorable = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxStorable = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// Zone describes how a source's terminal clock relates to real time.
type Zone struct {
	// HourOffset is subtracted from the terminal wall clock before localizing.
	HourOffset int
	// Terminal is the timezone the corrected wall clock is read in.
	Terminal *time.Location
}

// Entry is one row of the source configuration table.
type Entry struct {
	Name       string
	HourOffset int
	Timezone   string // IANA name, e.g. "US/Eastern"
}

// DefaultEntries returns the sources known to the terminal fleet.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: "Alpari", HourOffset: 7, Timezone: "US/Eastern"},
		{Name: "ICM", HourOffset: 7, Timezone: "US/Eastern"},
		{Name: "FXOpen", HourOffset: 7, Timezone: "US/Eastern"},
		{Name: "Rithmic", HourOffset: 0, Timezone: "UTC"},
	}
}

// Table maps source names to zones. It is read-only after construction.
type Table struct {
	zones map[string]Zone
}

// NewTable validates entries and loads their timezones.
func NewTable(entries []Entry) (*Table, error) {
	zones := make(map[string]Zone, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, errors.New("source name is required")
		}
		if _, dup := zones[e.Name]; dup {
			return nil, fmt.Errorf("source %q listed twice", e.Name)
		}
		if e.HourOffset < -24 || e.HourOffset > 24 {
			return nil, fmt.Errorf("source %q: hour offset %d out of range", e.Name, e.HourOffset)
		}
		loc, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return nil, fmt.Errorf("source %q: load timezone %q: %w", e.Name, e.Timezone, err)
		}
		zones[e.Name] = Zone{HourOffset: e.HourOffset, Terminal: loc}
	}
	return &Table{zones: zones}, nil
}

// Lookup returns the zone for a source.
func (t *Table) Lookup(name string) (Zone, error) {
	z, ok := t.zones[name]
	if !ok {
		return Zone{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return z, nil
}

// Len returns the number of configured sources.
func (t *Table) Len() int {
	return len(t.zones)
}

// StorageTime converts a terminal epoch-millisecond timestamp to the stored time.
//
// The epoch value is read as a UTC wall clock, shifted back by HourOffset hours,
// and the resulting wall clock is interpreted in the terminal timezone. Wall
// clocks skipped or repeated by a DST transition are rejected, never guessed.
func (z Zone) StorageTime(epochMs float64) (time.Time, error) {
	if math.IsNaN(epochMs) || math.IsInf(epochMs, 0) ||
		epochMs < float64(minStorable.UnixMilli()) || epochMs > float64(maxStorable.UnixMilli()) {
		return time.Time{}, fmt.Errorf("%w: %v", ErrEpochOutOfRange, epochMs)
	}
	wall := time.UnixMicro(int64(math.Round(epochMs * 1000))).UTC().
		Add(-time.Duration(z.HourOffset) * time.Hour)
	t, err := localize(wall, z.Terminal)
	if err != nil {
		return time.Time{}, err
	}
	if t.Before(minStorable) || t.After(maxStorable) {
		return time.Time{}, fmt.Errorf("%w: %v", ErrEpochOutOfRange, epochMs)
	}
	return t, nil
}

// localize interprets the UTC-expressed wall clock as local time in loc.
func localize(wall time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil || loc == time.UTC {
		return wall, nil
	}

	// Any instant matching the wall clock lies within a day of it, and zone
	// rules never change twice within that window.
	var matches []time.Time
	seen := make(map[int]bool, 3)
	for _, probe := range []time.Time{wall.Add(-24 * time.Hour), wall, wall.Add(24 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		if seen[offset] {
			continue
		}
		seen[offset] = true

		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if sameWallClock(candidate, wall) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrNonexistentTime, wall.Format(time.DateTime), loc)
	default:
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousTime, wall.Format(time.DateTime), loc)
	}
}

func sameWallClock(local, wall time.Time) bool {
	y1, m1, d1 := local.Date()
	y2, m2, d2 := wall.Date()
	h1, mi1, s1 := local.Clock()
	h2, mi2, s2 := wall.Clock()
	return y1 == y2 && m1 == m2 && d1 == d2 &&
		h1 == h2 && mi1 == mi2 && s1 == s2 &&
		local.Nanosecond() == wall.Nanosecond()
}

// HourOfDay returns hour + minute/60 of t expressed in ref.
func HourOfDay(t time.Time, ref *time.Location) float64 {
	local := t.In(ref)
	return float64(local.Hour()) + float64(local.Minute())/60
}
