package moderation_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/platform/internal/moderation"
	"github.com/moltboard/platform/pkg/models"
)

var t0 = time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC)

func TestSnapshot_ZeroForUnknownAgent(t *testing.T) {
	l := moderation.NewLedger(moderation.DefaultPolicy(), nil)

	st := l.Snapshot("ghost")
	assert.Equal(t, models.ModerationState{}, st)
	assert.False(t, l.IsBanned("ghost"))
	assert.False(t, l.IsLimited("ghost", t0))
}

func TestRecordViolation_Escalation(t *testing.T) {
	l := moderation.NewLedger(moderation.DefaultPolicy(), nil)

	st := l.RecordViolation("a", t0)
	assert.Equal(t, 1, st.Strikes)
	assert.Nil(t, st.LimitedUntilMs)

	st = l.RecordViolation("a", t0)
	assert.Equal(t, 2, st.Strikes)
	assert.Nil(t, st.LimitedUntilMs)

	st = l.RecordViolation("a", t0)
	assert.Equal(t, 3, st.Strikes)
	require.NotNil(t, st.LimitedUntilMs)
	want := t0.Add(time.Hour).UnixMilli()
	assert.Equal(t, want, *st.LimitedUntilMs)
	assert.Equal(t, 1, st.LimitedCount)
	assert.True(t, l.IsLimited("a", t0.Add(59*time.Minute)))

	// Active limit is not extended by further strikes.
	st = l.RecordViolation("a", t0.Add(time.Minute))
	assert.Equal(t, 4, st.Strikes)
	assert.Equal(t, want, *st.LimitedUntilMs)
	assert.Equal(t, 1, st.LimitedCount)

	// The limit lapses exactly at limitedUntilMs.
	assert.False(t, l.IsLimited("a", t0.Add(time.Hour)))

	// Past the limit, the next violation re-limits.
	later := t0.Add(2 * time.Hour)
	st = l.RecordViolation("a", later)
	assert.Equal(t, 5, st.Strikes)
	assert.Equal(t, later.Add(time.Hour).UnixMilli(), *st.LimitedUntilMs)
	assert.Equal(t, 2, st.LimitedCount)
	assert.False(t, st.IsBanned)
}

func TestRecordViolation_BanIsIdempotent(t *testing.T) {
	l := moderation.NewLedger(moderation.Policy{LimitThreshold: 3, BanThreshold: 9, LimitDuration: time.Hour}, nil)

	var st models.ModerationState
	for i := 0; i < 9; i++ {
		st = l.RecordViolation("a", t0.Add(time.Duration(i)*time.Minute))
	}
	require.True(t, st.IsBanned)
	require.NotNil(t, st.BannedAtMs)
	bannedAt := *st.BannedAtMs
	assert.Equal(t, t0.Add(8*time.Minute).UnixMilli(), bannedAt)

	for i := 0; i < 5; i++ {
		st = l.RecordViolation("a", t0.Add(time.Duration(100+i)*time.Hour))
		assert.True(t, st.IsBanned)
		assert.Equal(t, bannedAt, *st.BannedAtMs)
	}
	assert.True(t, l.IsBanned("a"))
}

func TestSession_ReportsEscalation(t *testing.T) {
	l := moderation.NewLedger(moderation.Policy{LimitThreshold: 1, BanThreshold: 2, LimitDuration: time.Minute}, nil)

	s := l.Acquire("a")
	st, esc := s.RecordViolation(t0)
	assert.True(t, esc.Limited)
	assert.False(t, esc.Banned)
	assert.Equal(t, 1, st.Strikes)
	require.NotNil(t, s.LimitedUntil(t0))
	assert.Nil(t, s.LimitedUntil(t0.Add(time.Minute)))

	_, esc = s.RecordViolation(t0)
	assert.True(t, esc.Banned)
	assert.False(t, esc.Limited, "limit still active")
	assert.True(t, s.IsBanned())
	s.Release()
	s.Release()
}

func TestSnapshot_IsACopy(t *testing.T) {
	l := moderation.NewLedger(moderation.Policy{LimitThreshold: 1}, nil)
	l.RecordViolation("a", t0)

	st := l.Snapshot("a")
	*st.LimitedUntilMs = 0
	st.Strikes = 100

	again := l.Snapshot("a")
	assert.Equal(t, 1, again.Strikes)
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), *again.LimitedUntilMs)
}

func TestRecordViolation_ConcurrentSameAgent(t *testing.T) {
	l := moderation.NewLedger(moderation.DefaultPolicy(), nil)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordViolation("a", t0)
		}()
	}
	wg.Wait()

	st := l.Snapshot("a")
	assert.Equal(t, n, st.Strikes)
	assert.Equal(t, 1, st.LimitedCount, "limit applied once while active")
	assert.True(t, st.IsBanned)
}

func TestLedger_EmitsEvents(t *testing.T) {
	events := moderation.NewEventLog(16)
	l := moderation.NewLedger(moderation.Policy{LimitThreshold: 2, BanThreshold: 3, LimitDuration: time.Hour}, events)

	l.RecordViolation("a", t0)
	l.RecordViolation("b", t0)
	l.RecordViolation("a", t0)
	l.RecordViolation("a", t0)

	got := events.Recent("a", 0)
	kinds := make([]models.ModerationEventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
		assert.Equal(t, "a", ev.AgentID)
	}
	assert.Equal(t, []models.ModerationEventKind{
		models.ModerationStrike,
		models.ModerationStrike,
		models.ModerationLimited,
		models.ModerationStrike,
		models.ModerationBanned,
	}, kinds)
	assert.Len(t, events.Recent("", 0), 6)
}
