package eventstudy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineDaysAndPlaceboWindows(t *testing.T) {
	days, ts := sessionBars(time.Date(2025, 6, 2, 0, 0, 0, 0, newYork), 8)
	eventDay := days[7]
	event := EventWindow{
		Label: "event",
		Start: eventDay.Add(12 * time.Hour),
		End:   eventDay.Add(16*time.Hour + 5*time.Minute),
	}

	prior := BaselineDays(ts, event, 5, newYork)
	require.Len(t, prior, 5)
	assert.True(t, days[2].Equal(prior[0]))
	assert.True(t, days[6].Equal(prior[4]))

	all := BaselineDays(ts, event, 50, newYork)
	assert.Len(t, all, 7)

	windows := PlaceboWindows(event, append(prior, eventDay), newYork)
	require.Len(t, windows, 5)
	for i, w := range windows {
		assert.True(t, prior[i].Add(12*time.Hour).Equal(w.Start))
		assert.Equal(t, 12, w.Start.Hour())
		assert.Equal(t, 16, w.End.Hour())
		assert.True(t, w.End.Before(event.Start))
		assert.Equal(t, prior[i].Format("2006-01-02"), w.Label)
	}
}

func TestPlaceboWindows_DaylightSaving(t *testing.T) {
	// US clocks moved forward on 2025-03-09
	event := EventWindow{
		Start: time.Date(2025, 3, 10, 10, 0, 0, 0, newYork),
		End:   time.Date(2025, 3, 10, 11, 0, 0, 0, newYork),
	}
	windows := PlaceboWindows(event, []time.Time{time.Date(2025, 3, 7, 0, 0, 0, 0, newYork)}, newYork)
	require.Len(t, windows, 1)
	assert.Equal(t, 10, windows[0].Start.In(newYork).Hour())
	assert.Equal(t, time.Hour, windows[0].End.Sub(windows[0].Start))
}

func TestClockVolumes(t *testing.T) {
	days, ts := sessionBars(time.Date(2025, 6, 2, 0, 0, 0, 0, newYork), 3)
	pts := make([]PricePoint, len(ts))
	for i, at := range ts {
		pts[i] = PricePoint{Asset: "XLE", Timestamp: at, Price: 90, Volume: float64(i)}
	}
	clock, err := ParseClock("15:55")
	require.NoError(t, err)

	v, ok := ClockVolume(pts, days[1].Add(13*time.Hour), clock, newYork)
	require.True(t, ok)
	assert.Equal(t, float64(79+77), v)

	vols := ClockVolumes(pts, days[:2], clock, newYork)
	assert.Equal(t, []float64{77, 79 + 77}, vols)

	_, ok = ClockVolume(pts, days[0].AddDate(0, 0, -1), clock, newYork)
	assert.False(t, ok)
}

func TestSession(t *testing.T) {
	s := DefaultSession()
	assert.True(t, s.Contains(time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)))
	assert.True(t, s.Contains(time.Date(2025, 6, 2, 16, 0, 0, 0, newYork)))
	assert.False(t, s.Contains(time.Date(2025, 6, 2, 16, 5, 0, 0, newYork)))
	assert.True(t, s.Contains(time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)), "14:00 UTC is 10:00 in New York")

	_, err := NewSession("America/New_York", "16:00", "09:30")
	assert.Error(t, err)
	_, err = NewSession("Nowhere/City", "09:30", "16:00")
	assert.Error(t, err)
	_, err = ParseClock("9h30")
	assert.Error(t, err)
}
