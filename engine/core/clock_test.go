package core

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	c := &Clock{now: func() time.Time { return now }}

	now = base.Add(time.Second)
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("stopped clock advanced: %f", c.Elapsed())
	}

	c.Start()
	now = now.Add(1500 * time.Millisecond)
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Fatalf("Elapsed() = %f, want 1.5", c.Elapsed())
	}

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Fatalf("Stop reset or advanced the clock: %f", c.Elapsed())
	}
}
