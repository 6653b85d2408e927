package model

import (
	"sort"
	"time"
)

// MinResolutionSeconds is the fundamental polling cadence and the narrowest
// bar width. Every other resolution is an integer multiple of it, so bar
// boundaries at coarser resolutions always coincide with 15s boundaries.
const MinResolutionSeconds = 15

// DefaultResolution is used when a topic is created without one.
const DefaultResolution = "1m"

// Resolutions maps each supported resolution token to its width in seconds.
var Resolutions = map[string]int{
	"15s": 15,
	"30s": 30,
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
}

// ResolutionSeconds returns the width in seconds for a resolution token.
func ResolutionSeconds(token string) (int, bool) {
	secs, ok := Resolutions[token]
	return secs, ok
}

// ValidResolution reports whether token is a supported resolution.
func ValidResolution(token string) bool {
	_, ok := Resolutions[token]
	return ok
}

// ResolutionTokens returns all supported tokens ordered by width, narrowest
// first.
func ResolutionTokens() []string {
	tokens := make([]string, 0, len(Resolutions))
	for t := range Resolutions {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return Resolutions[tokens[i]] < Resolutions[tokens[j]]
	})
	return tokens
}

// FloorToResolution floors t to the previous bar boundary for a width in
// seconds. The result is aligned: unix seconds are a multiple of secs.
func FloorToResolution(t time.Time, secs int) time.Time {
	s := int64(secs)
	return time.Unix(t.Unix()/s*s, 0).UTC()
}

// CeilToResolution returns the next bar boundary at or after t.
func CeilToResolution(t time.Time, secs int) time.Time {
	floored := FloorToResolution(t, secs)
	if floored.Equal(t) && t.Nanosecond() == 0 {
		return floored
	}
	return floored.Add(time.Duration(secs) * time.Second)
}
