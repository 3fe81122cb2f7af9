package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey(t *testing.T) {
	east := time.FixedZone("UTC+9", 9*3600)
	west := time.FixedZone("UTC-5", -5*3600)

	// 23:30 UTC is already tomorrow at UTC+9 and still today at UTC-5.
	instant := time.Date(2026, 1, 2, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-03", DayKey(instant, east))
	assert.Equal(t, "2026-01-02", DayKey(instant, west))
	assert.Equal(t, "2026-01-02", DayKey(instant, time.UTC))
}

func TestStartOfDay(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*3600)

	instant := time.Date(2026, 1, 3, 2, 15, 0, 0, time.UTC)
	start := StartOfDay(instant, west)

	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, west), start)
	assert.Equal(t, "2026-01-02", DayKey(start, west))
}

func TestNextBackoff(t *testing.T) {
	base := time.Minute
	max := 30 * time.Minute

	assert.Equal(t, time.Minute, NextBackoff(base, 0, max))
	assert.Equal(t, 2*time.Minute, NextBackoff(base, 1, max))
	assert.Equal(t, 4*time.Minute, NextBackoff(base, 2, max))
	assert.Equal(t, 16*time.Minute, NextBackoff(base, 4, max))

	// Doubling saturates at the cap.
	assert.Equal(t, max, NextBackoff(base, 5, max))
	assert.Equal(t, max, NextBackoff(base, 50, max))

	assert.Equal(t, time.Duration(0), NextBackoff(0, 3, max))
	assert.Equal(t, 8*time.Minute, NextBackoff(base, 3, 0))
}
