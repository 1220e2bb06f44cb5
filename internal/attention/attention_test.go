package attention

import (
	"math"
	"testing"

	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/slides"
)

var slide0 = slides.Window{Index: 0, Start: 0, End: 10}

func TestEmptySlideIsNotFlagged(t *testing.T) {
	c := NewClassifier(DefaultConfig(), 1)
	r := c.Classify(slide0, nil, nil)

	if r.MindWandering || r.VelocityFlag || r.BlinkRateFlag || r.BlinkDurationFlag {
		t.Errorf("empty slide should not be flagged: %+v", r)
	}
	if r.Metrics.BlinkRate != 0 || r.Metrics.ErraticRatio != 0 || math.IsNaN(r.Metrics.MeanBlinkDuration) {
		t.Errorf("empty slide metrics should be zero: %+v", r.Metrics)
	}
}

func TestBlinkFlags(t *testing.T) {
	tests := []struct {
		name     string
		blinks   []logic.Blink
		rate     bool
		duration bool
	}{
		{"normal blinks", []logic.Blink{logic.NewBlink(1, 1.2), logic.NewBlink(5, 5.2)}, false, false},
		{"too short", []logic.Blink{logic.NewBlink(1, 1.05)}, false, true},
		{"too long", []logic.Blink{logic.NewBlink(1, 1.5)}, false, true},
		{"too frequent", func() []logic.Blink {
			var b []logic.Blink
			for i := 0; i < 6; i++ {
				b = append(b, logic.NewBlink(float64(i), float64(i)+0.2))
			}
			return b
		}(), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewClassifier(DefaultConfig(), 1).Classify(slide0, tt.blinks, nil)
			if r.BlinkRateFlag != tt.rate {
				t.Errorf("rate flag = %v, want %v (rate %.2f)", r.BlinkRateFlag, tt.rate, r.Metrics.BlinkRate)
			}
			if r.BlinkDurationFlag != tt.duration {
				t.Errorf("duration flag = %v, want %v (mean %.2f)", r.BlinkDurationFlag, tt.duration, r.Metrics.MeanBlinkDuration)
			}
			if r.MindWandering != (tt.rate || tt.duration) {
				t.Errorf("mind wandering = %v", r.MindWandering)
			}
		})
	}
}

func TestVelocityFlag(t *testing.T) {
	seg := func(v float64) logic.FixationSegment { return logic.FixationSegment{MeanVelocity: v} }
	c := NewClassifier(DefaultConfig(), 2) // erratic above 3

	calm := c.Classify(slide0, nil, []logic.FixationSegment{seg(1), seg(2), seg(3.5)})
	if calm.VelocityFlag {
		t.Errorf("1 of 3 erratic should not flag, ratio %.2f", calm.Metrics.ErraticRatio)
	}

	erratic := c.Classify(slide0, nil, []logic.FixationSegment{seg(1), seg(4), seg(3.5)})
	if !erratic.VelocityFlag || !erratic.MindWandering {
		t.Errorf("2 of 3 erratic should flag, got %+v", erratic)
	}
	if erratic.Metrics.ErraticCount != 2 || erratic.Metrics.FixationCount != 3 {
		t.Errorf("unexpected metrics %+v", erratic.Metrics)
	}
}

func TestOpenSlideHasNoRate(t *testing.T) {
	w := slides.Window{Index: 2, Start: 20, End: 20, Open: true}
	r := NewClassifier(DefaultConfig(), 1).Classify(w, []logic.Blink{logic.NewBlink(21, 21.2)}, nil)
	if r.Metrics.BlinkRate != 0 || r.BlinkRateFlag {
		t.Errorf("open slide should report zero rate, got %+v", r)
	}
	if r.TimePeriod() != "20.000-" {
		t.Errorf("unexpected time period %q", r.TimePeriod())
	}
}

func TestWordsPerSecond(t *testing.T) {
	c := NewClassifier(DefaultConfig(), 1).WithWordCounts([]int{40})
	r := c.Classify(slide0, nil, nil)
	if r.Metrics.WordsPerSecond == nil || *r.Metrics.WordsPerSecond != 4 {
		t.Errorf("expected 4 words per second, got %v", r.Metrics.WordsPerSecond)
	}

	r = c.Classify(slides.Window{Index: 1, Start: 10, End: 20}, nil, nil)
	if r.Metrics.WordsPerSecond != nil {
		t.Error("slide without a word count should not report a reading rate")
	}
}

func TestCrossCheck(t *testing.T) {
	records := []Record{
		{Slide: 0, PeriodStart: 0, PeriodEnd: 10, MindWandering: true},
		{Slide: 1, PeriodStart: 10, PeriodEnd: 20},
		{Slide: 2, PeriodStart: 20, Open: true, MindWandering: true},
	}
	got := CrossCheck([]float64{5, 15, 25}, records)
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if !got[0].Matched || got[0].Slide != 0 {
		t.Errorf("report at 5 should match slide 0, got %+v", got[0])
	}
	if got[1].Matched {
		t.Errorf("report at 15 should be unmatched, got %+v", got[1])
	}
	if !got[2].Matched || got[2].Slide != 2 {
		t.Errorf("report at 25 should match open slide 2, got %+v", got[2])
	}
}

func TestSummary(t *testing.T) {
	flagged, total := Summary([]Record{{MindWandering: true}, {}, {MindWandering: true}})
	if flagged != 2 || total != 3 {
		t.Errorf("Summary = %d/%d, want 2/3", flagged, total)
	}
}
