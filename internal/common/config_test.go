package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationOr(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, DurationOr("250ms", time.Second))
	assert.Equal(t, time.Second, DurationOr("", time.Second))
	assert.Equal(t, time.Second, DurationOr("soon", time.Second))
	assert.Equal(t, time.Second, DurationOr("-5s", time.Second))
}

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("09:10")
	assert.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 10, minute)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
}
