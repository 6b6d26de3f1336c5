package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type scheduled struct {
	timer *time.Timer
	seq   uint64
}

// TimerManager holds at most one pending server-side timer per room, used to
// fire the countdown end and the round deadline. Callbacks run on their own
// goroutine and must tolerate having become stale.
type TimerManager struct {
	timers  map[uuid.UUID]scheduled
	seq     uint64
	stopped bool
	mu      sync.Mutex
}

func NewTimerManager() *TimerManager {
	return &TimerManager{timers: make(map[uuid.UUID]scheduled)}
}

// Schedule replaces any pending timer for roomID with fn firing at at.
func (tm *TimerManager) Schedule(roomID uuid.UUID, at time.Time, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return
	}
	if prev, ok := tm.timers[roomID]; ok {
		prev.timer.Stop()
	}

	tm.seq++
	seq := tm.seq
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	tm.timers[roomID] = scheduled{
		seq: seq,
		timer: time.AfterFunc(delay, func() {
			tm.mu.Lock()
			current, ok := tm.timers[roomID]
			if !ok || current.seq != seq {
				tm.mu.Unlock()
				return
			}
			delete(tm.timers, roomID)
			tm.mu.Unlock()
			fn()
		}),
	}
}

func (tm *TimerManager) Cancel(roomID uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if prev, ok := tm.timers[roomID]; ok {
		prev.timer.Stop()
		delete(tm.timers, roomID)
	}
}

func (tm *TimerManager) Pending(roomID uuid.UUID) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.timers[roomID]
	return ok
}

// Stop cancels every pending timer; later Schedule calls are ignored.
func (tm *TimerManager) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.stopped = true
	for id, s := range tm.timers {
		s.timer.Stop()
		delete(tm.timers, id)
	}
}
