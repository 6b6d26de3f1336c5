package domain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/datatypes"
)

func TestGenerateRoomCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := domain.GenerateRoomCode()
		require.NoError(t, err)
		assert.Len(t, code, domain.RoomCodeLength)
		assert.True(t, domain.IsValidRoomCode(code), "code %s", code)
		assert.False(t, strings.ContainsAny(code, "IO01"), "ambiguous glyph in %s", code)
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, "ABC234", domain.NormalizeRoomCode("  abc234 "))
	assert.True(t, domain.IsValidRoomCode(domain.NormalizeRoomCode("xyz789")))
	assert.False(t, domain.IsValidRoomCode("ABCD10"))
	assert.False(t, domain.IsValidRoomCode("ABC"))
}

func TestRoomStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from domain.RoomStatus
		to   domain.RoomStatus
		want bool
	}{
		{domain.RoomStatusWaiting, domain.RoomStatusCountdown, true},
		{domain.RoomStatusWaiting, domain.RoomStatusPlaying, false},
		{domain.RoomStatusCountdown, domain.RoomStatusPlaying, true},
		{domain.RoomStatusCountdown, domain.RoomStatusWaiting, true},
		{domain.RoomStatusPlaying, domain.RoomStatusPaused, true},
		{domain.RoomStatusPaused, domain.RoomStatusPlaying, true},
		{domain.RoomStatusPlaying, domain.RoomStatusInputting, true},
		{domain.RoomStatusInputting, domain.RoomStatusWaiting, true},
		{domain.RoomStatusInputting, domain.RoomStatusPlaying, false},
		{domain.RoomStatusPlaying, domain.RoomStatusFinished, true},
		{domain.RoomStatusFinished, domain.RoomStatusWaiting, false},
		{domain.RoomStatusFinished, domain.RoomStatusCountdown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestRoom_Transition(t *testing.T) {
	room := &domain.Room{Status: domain.RoomStatusWaiting}
	require.NoError(t, room.Transition(domain.RoomStatusCountdown))
	assert.Equal(t, domain.RoomStatusCountdown, room.Status)

	err := room.Transition(domain.RoomStatusInputting)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.RoomStatusCountdown, room.Status)
}

func TestRoom_Settings(t *testing.T) {
	room := &domain.Room{}
	assert.Equal(t, domain.RoomSettings{}, room.Settings.Data())

	room.Settings = datatypes.NewJSONType(domain.RoomSettings{FormType: domain.CuppingFormSimple})
	data, err := json.Marshal(room)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"settings":{"formType":"simple"}`)

	var decoded domain.Room
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, domain.CuppingFormSimple, decoded.Settings.Data().FormType)
}

func TestValidateTimerMinutes(t *testing.T) {
	assert.NoError(t, domain.ValidateTimerMinutes(1))
	assert.NoError(t, domain.ValidateTimerMinutes(60))
	assert.ErrorIs(t, domain.ValidateTimerMinutes(0), domain.ErrInvalidTimer)
	assert.ErrorIs(t, domain.ValidateTimerMinutes(61), domain.ErrInvalidTimer)
}
