package logic

import (
	"math"
	"sort"
)

// Velocities returns the horizontal gaze velocity at each sample of an
// ordered, fully defined, gap-free run. Interior samples use the central
// difference over their neighbours' start times; the first and last sample
// copy the nearest interior value. A two-sample run uses the forward
// difference for both. A zero time delta yields zero velocity.
func Velocities(samples []GazeSample) []float64 {
	n := len(samples)
	v := make([]float64, n)
	if n == 2 {
		v[0] = slope(samples[0], samples[1])
		v[1] = v[0]
		return v
	}
	for i := 1; i < n-1; i++ {
		v[i] = slope(samples[i-1], samples[i+1])
	}
	if n > 2 {
		v[0] = v[1]
		v[n-1] = v[n-2]
	}
	return v
}

func slope(a, b GazeSample) float64 {
	dt := b.Start - a.Start
	if dt == 0 {
		return 0
	}
	return (b.Horizontal() - a.Horizontal()) / dt
}

// DefinedSamples returns the defined samples of series ordered by start time.
// Undefined samples are gaps and take no part in velocity estimation.
func DefinedSamples(series []GazeSample) []GazeSample {
	out := make([]GazeSample, 0, len(series))
	for _, s := range series {
		if s.Defined() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Runs splits ordered defined samples at detection gaps. A gap lies between
// two samples when the later one starts after the earlier one ended; the
// gaze is unknown there and is never interpolated across.
func Runs(samples []GazeSample) [][]GazeSample {
	var runs [][]GazeSample
	from := 0
	for i := 1; i <= len(samples); i++ {
		if i == len(samples) || samples[i].Start > samples[i-1].End {
			runs = append(runs, samples[from:i])
			from = i
		}
	}
	return runs
}

// MeanAbsVelocity returns the average absolute velocity of the series, or
// zero for an empty one.
func MeanAbsVelocity(series []GazeSample) float64 {
	var sum float64
	var n int
	for _, run := range Runs(DefinedSamples(series)) {
		for _, x := range Velocities(run) {
			sum += math.Abs(x)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// SegmentFixations splits the series into fixation segments: maximal runs
// of samples whose absolute velocity is below threshold. A segment spans its
// run, but its mean velocity also counts the sample that broke the run, so a
// short fixation cut off by a fast saccade reads as erratic. A run still open
// at a detection gap or at the end of the series is closed at its last
// sample.
func SegmentFixations(series []GazeSample, threshold float64) []FixationSegment {
	var segments []FixationSegment
	for _, run := range Runs(DefinedSamples(series)) {
		segments = append(segments, segmentRun(run, threshold)...)
	}
	return segments
}

func segmentRun(samples []GazeSample, threshold float64) []FixationSegment {
	v := Velocities(samples)

	var segments []FixationSegment
	runStart := -1
	closeRun := func(last, through int) {
		var sum float64
		for i := runStart; i <= through; i++ {
			sum += math.Abs(v[i])
		}
		start, end := samples[runStart].Start, samples[last].End
		segments = append(segments, FixationSegment{
			Start:        start,
			End:          end,
			MeanVelocity: sum / float64(through-runStart+1),
			Duration:     end - start,
			Samples:      last - runStart + 1,
		})
		runStart = -1
	}

	for i := range samples {
		fixating := math.Abs(v[i]) < threshold
		switch {
		case fixating && runStart < 0:
			runStart = i
		case !fixating && runStart >= 0:
			closeRun(i-1, i)
		}
	}
	if last := len(samples) - 1; runStart >= 0 {
		closeRun(last, last)
	}
	return segments
}
