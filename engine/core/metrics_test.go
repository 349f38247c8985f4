package core

import (
	"math"
	"testing"
)

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT)-1; i++ {
		m.Update(0.016)
	}
	if m.FrameTime() != 0 {
		t.Fatalf("average published before a full window: %f", m.FrameTime())
	}
	m.Update(0.016)
	if math.Abs(m.FrameTime()-16) > 1e-9 {
		t.Fatalf("FrameTime() = %f, want 16", m.FrameTime())
	}

	// the second window must not accumulate on top of the first one
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.008)
	}
	if math.Abs(m.FrameTime()-8) > 1e-9 {
		t.Fatalf("FrameTime() = %f, want 8", m.FrameTime())
	}
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	// 100 frames of 10ms cross the one second boundary on the 101st update
	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	fps, _ := m.Frame()
	if fps != 100 {
		t.Fatalf("FPS = %f, want 100", fps)
	}
}
