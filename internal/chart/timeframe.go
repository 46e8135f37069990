package chart

import (
	"strconv"
	"strings"
)

const (
	defaultTimeframe = "1m"
	defaultInterval  = 60
	minSecondsOrMin  = 5
	minHourInterval  = 60
	// hourFallback is used when an h frame has no parsable count.
	hourFallback = 3600
)

// ParseTimeframe converts "30s", "5m" or "1h" into seconds. Second and minute
// frames are floored at 5s, hour frames at 60s. A frame whose number does not
// parse falls back to 60s (3600s for hours); a frame with no known unit is 60s.
func ParseTimeframe(tf string) int {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if tf == "" {
		tf = defaultTimeframe
	}

	unit := tf[len(tf)-1]
	n, err := strconv.Atoi(tf[:len(tf)-1])

	switch unit {
	case 'm':
		if err != nil {
			return defaultInterval
		}
		return max(n*60, minSecondsOrMin)
	case 's':
		if err != nil {
			return defaultInterval
		}
		return max(n, minSecondsOrMin)
	case 'h':
		if err != nil {
			return hourFallback
		}
		return max(n*3600, minHourInterval)
	default:
		return defaultInterval
	}
}
