package logic

// WindowStats summarizes the blinks inside a lookback window.
type WindowStats struct {
	Count         int     `json:"count"`
	RatePerMinute float64 `json:"rate_per_minute"`
	MeanDuration  float64 `json:"mean_duration"`
}

// BlinkWindow computes blink statistics over the window (now-window, now].
//
// The rate divides by the time actually covered, now minus the earliest
// included blink start, not by the full window, so it is meaningful before a
// full window of data exists. Empty windows report zeros.
func BlinkWindow(blinks []Blink, now, window float64) WindowStats {
	var (
		count    int
		total    float64
		earliest float64
	)
	for _, b := range blinks {
		if b.Start <= now-window || b.Start > now {
			continue
		}
		if count == 0 || b.Start < earliest {
			earliest = b.Start
		}
		count++
		total += b.Duration
	}
	if count == 0 {
		return WindowStats{}
	}

	stats := WindowStats{Count: count, MeanDuration: total / float64(count)}
	if elapsed := now - earliest; elapsed > 0 {
		stats.RatePerMinute = float64(count) / (elapsed / 60)
	}
	return stats
}
