package runtime

import (
	"time"
)

// pendingTimer is an armed delay of one transition. The id tells a live
// timer apart from one that was cancelled after it already fired.
type pendingTimer struct {
	timer *time.Timer
	id    uint64
}

func (e *Engine) arm(index int, d time.Duration) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.ctx.Err() != nil {
		return
	}

	e.timerSeq++
	id := e.timerSeq
	ev := event{kind: eventTimer, index: index, timerID: id}
	ctx := e.ctx
	e.timers[index] = &pendingTimer{
		id: id,
		timer: time.AfterFunc(d, func() {
			select {
			case e.events <- ev:
			case <-ctx.Done():
			}
		}),
	}
	e.logger.Debug("timer armed", "machine", e.def.Name, "transition", e.def.Transitions[index].Label(), "delay", d)
}

func (e *Engine) armed(index int) bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	_, ok := e.timers[index]
	return ok
}

func (e *Engine) disarm(index int) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if pt, ok := e.timers[index]; ok {
		pt.timer.Stop()
		delete(e.timers, index)
	}
}

// claimTimer consumes the timer behind a timer event. A false result means
// the timer was cancelled or replaced and the event is stale.
func (e *Engine) claimTimer(index int, id uint64) bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	pt, ok := e.timers[index]
	if !ok || pt.id != id {
		return false
	}
	delete(e.timers, index)
	return true
}

func (e *Engine) cancelAllTimers() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	for i, pt := range e.timers {
		pt.timer.Stop()
		delete(e.timers, i)
	}
}

// PendingTimers returns how many delays are armed.
func (e *Engine) PendingTimers() int {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return len(e.timers)
}
