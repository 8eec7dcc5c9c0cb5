package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal(t *testing.T) {
	now := Real().Now()
	assert.Equal(t, time.UTC, now.Location(), "expected UTC time")
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond), "expected millisecond precision")
}

func TestFake(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	f.Advance(16 * time.Second)
	assert.Equal(t, start.Add(16*time.Second), f.Now())

	f.Set(start)
	assert.Equal(t, start, f.Now())
}
