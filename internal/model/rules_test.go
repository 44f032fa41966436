package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRoom(target int) *Room {
	return &Room{Code: "123456", TargetCount: target, CreatedAt: t0}
}

func TestApplyTap_UnboundedNeverCompletes(t *testing.T) {
	r := newRoom(0)
	for i := 0; i < 250; i++ {
		require.True(t, r.ApplyTap(t0))
		assert.False(t, r.IsCompleted)
	}
	assert.Equal(t, 250, r.TotalCount)
	assert.Nil(t, r.CompletedAt)
}

func TestApplyTap_CompletesOnceAndDeclines(t *testing.T) {
	r := newRoom(3)
	r.ApplyTap(t0)
	r.ApplyTap(t0.Add(time.Second))
	assert.False(t, r.IsCompleted)

	done := t0.Add(2 * time.Second)
	require.True(t, r.ApplyTap(done))
	assert.True(t, r.IsCompleted)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, done, *r.CompletedAt)

	assert.False(t, r.ApplyTap(t0.Add(time.Minute)))
	assert.Equal(t, 3, r.TotalCount)
	assert.Equal(t, done, *r.CompletedAt)
}

func TestApplyBulkAdjust_ClampsAtZero(t *testing.T) {
	r := newRoom(0)
	r.ApplyBulkAdjust(50, t0)
	assert.Equal(t, 50, r.TotalCount)
	r.ApplyBulkAdjust(-100, t0)
	assert.Equal(t, 0, r.TotalCount)
	assert.False(t, r.IsCompleted)
}

func TestApplyBulkAdjust_OvershootsAndReopens(t *testing.T) {
	r := newRoom(10)
	r.ApplyBulkAdjust(25, t0)
	assert.Equal(t, 25, r.TotalCount)
	assert.True(t, r.IsCompleted)
	require.NotNil(t, r.CompletedAt)

	// a further credit keeps the original completion time
	r.ApplyBulkAdjust(5, t0.Add(time.Hour))
	assert.Equal(t, t0, *r.CompletedAt)

	r.ApplyBulkAdjust(-25, t0.Add(2*time.Hour))
	assert.Equal(t, 5, r.TotalCount)
	assert.False(t, r.IsCompleted)
	assert.Nil(t, r.CompletedAt)
}

func TestApplyBulkAdjust_ZeroIsNoop(t *testing.T) {
	r := newRoom(0)
	r.ApplyBulkAdjust(0, t0)
	assert.Nil(t, r.LastActive)
	assert.Equal(t, 0, r.TotalCount)
}

func TestApplyTarget(t *testing.T) {
	r := newRoom(100)
	r.TotalCount = 40

	r.ApplyTarget(40, t0)
	assert.True(t, r.IsCompleted)
	require.NotNil(t, r.CompletedAt)

	r.ApplyTarget(41, t0)
	assert.False(t, r.IsCompleted)
	assert.Nil(t, r.CompletedAt)

	r.ApplyTarget(0, t0)
	assert.False(t, r.IsCompleted, "unbounded rooms never complete")
}

func TestApplyReset(t *testing.T) {
	r := newRoom(2)
	r.ApplyTap(t0)
	r.ApplyTap(t0)
	require.True(t, r.IsCompleted)

	r.ApplyReset(t0.Add(time.Minute))
	assert.Equal(t, 0, r.TotalCount)
	assert.False(t, r.IsCompleted)
	assert.Nil(t, r.CompletedAt)
	assert.Equal(t, t0.Add(time.Minute), r.LastActiveAt())
}

func TestLastActiveAt_FallsBackToCreatedAt(t *testing.T) {
	r := newRoom(0)
	assert.Equal(t, t0, r.LastActiveAt())
}

func TestParticipantAddCount_Clamps(t *testing.T) {
	p := &Participant{PersonalCount: 3}
	p.AddCount(-10)
	assert.Equal(t, 0, p.PersonalCount)
	p.AddCount(7)
	assert.Equal(t, 7, p.PersonalCount)
}

func TestSortParticipants(t *testing.T) {
	a := &Participant{ID: "a", PersonalCount: 1, JoinedAt: t0}
	b := &Participant{ID: "b", PersonalCount: 5, JoinedAt: t0.Add(time.Second)}
	c := &Participant{ID: "c", PersonalCount: 1, JoinedAt: t0.Add(-time.Second)}
	ps := []*Participant{a, b, c}
	SortParticipants(ps)
	assert.Equal(t, []string{"b", "c", "a"}, []string{ps[0].ID, ps[1].ID, ps[2].ID})
}

func TestEventRoundTrip(t *testing.T) {
	ev := &Event{Type: EventAlert, RoomCode: "123456", Message: "hello", SentAt: t0}
	data, err := ev.Marshal()
	require.NoError(t, err)
	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventAlert, got.Type)
	assert.Equal(t, "hello", got.Message)
}
