package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/platform/internal/clock"
)

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC)
	c := clock.Fake(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
	assert.Equal(t, start.Add(90*time.Second).UnixMilli(), clock.UnixMilli(c))
}

func TestFakeClock_TickerFiresOnAdvance(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before the clock moved")
	default:
	}

	c.Advance(time.Minute)
	select {
	case tick := <-ticker.C:
		assert.Equal(t, time.Unix(60, 0), tick)
	default:
		t.Fatal("ticker did not fire after Advance")
	}
}

func TestFakeClock_StoppedTickerIsSilent(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClock_NonPositiveTickerPanics(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	require.Panics(t, func() { c.NewTicker(0) })
}
