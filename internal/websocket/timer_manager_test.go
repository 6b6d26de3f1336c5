package websocket

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTimerManager_Fires(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Stop()

	roomID := uuid.New()
	var fired atomic.Int32
	tm.Schedule(roomID, time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })
	assert.True(t, tm.Pending(roomID))

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, tm.Pending(roomID))
}

func TestTimerManager_ScheduleReplaces(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Stop()

	roomID := uuid.New()
	var first, second atomic.Int32
	tm.Schedule(roomID, time.Now().Add(30*time.Millisecond), func() { first.Add(1) })
	tm.Schedule(roomID, time.Now().Add(40*time.Millisecond), func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestTimerManager_Cancel(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Stop()

	roomID := uuid.New()
	var fired atomic.Int32
	tm.Schedule(roomID, time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })
	tm.Cancel(roomID)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, tm.Pending(roomID))
}

func TestTimerManager_PastDeadlineFiresImmediately(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Stop()

	var fired atomic.Int32
	tm.Schedule(uuid.New(), time.Now().Add(-time.Minute), func() { fired.Add(1) })
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTimerManager_StopIgnoresLaterSchedules(t *testing.T) {
	tm := NewTimerManager()
	tm.Stop()

	roomID := uuid.New()
	tm.Schedule(roomID, time.Now(), func() {})
	assert.False(t, tm.Pending(roomID))
}

func TestParseChannel(t *testing.T) {
	id := uuid.New()

	kind, key := ParseChannel(RoomChannel(id))
	assert.Equal(t, ChannelRoom, kind)
	assert.Equal(t, id.String(), key)

	kind, key = ParseChannel(InvitationChannel("user_2abc"))
	assert.Equal(t, ChannelInvitations, kind)
	assert.Equal(t, "user_2abc", key)

	for _, bad := range []string{"", "room_sync_", "user_invitations_", "presence_x"} {
		kind, _ = ParseChannel(bad)
		assert.Equal(t, ChannelUnknown, kind, bad)
	}
}
