package generator

// MsPerMinute is the number of milliseconds in one minute.
const MsPerMinute int64 = 60_000

// TimeframeMs returns the bucket width of a timeframe in milliseconds.
func TimeframeMs(timeframeMinutes int) int64 {
	return int64(timeframeMinutes) * MsPerMinute
}

// CandleIndex maps a UTC epoch-millisecond time to its bucket index. Bucket 0
// starts at the epoch. Division floors, so negative times map to negative
// indexes rather than collapsing onto bucket 0.
func CandleIndex(timeMs int64, timeframeMinutes int) int64 {
	width := TimeframeMs(timeframeMinutes)
	idx := timeMs / width
	if timeMs%width != 0 && timeMs < 0 {
		idx--
	}
	return idx
}

// CandleStartTime is the inverse of CandleIndex: the first millisecond of the bucket.
func CandleStartTime(index int64, timeframeMinutes int) int64 {
	return index * TimeframeMs(timeframeMinutes)
}
