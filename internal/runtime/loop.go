package runtime

import (
	"github.com/aretw0/fsmlink/pkg/domain"
)

type eventKind int

const (
	eventInput eventKind = iota
	eventTimer
)

type event struct {
	kind  eventKind
	name  string
	value string

	// timer events
	index   int
	timerID uint64

	processed chan struct{}
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.events:
			e.handle(ev)
			if ev.processed != nil {
				close(ev.processed)
			}
		}
	}
}

func (e *Engine) handle(ev event) {
	if !e.running() {
		return
	}
	switch ev.kind {
	case eventInput:
		e.bindings.Inputs[ev.name] = ev.value
		e.logger.Debug("input", "machine", e.def.Name, "name", ev.name, "value", ev.value)
		if e.scan(ev.name, ev.value) {
			e.settle()
		}
	case eventTimer:
		if !e.claimTimer(ev.index, ev.timerID) {
			return
		}
		e.ready[ev.index] = true
		t := e.def.Transitions[ev.index]
		e.logger.Debug("timer elapsed", "machine", e.def.Name, "transition", t.Label())
		if e.scan(t.Input, e.bindings.Inputs[t.Input]) {
			e.settle()
		}
	}
	e.publish()
}

// settle keeps firing input-less transitions out of the active state until
// none is taken.
func (e *Engine) settle() {
	for i := 0; i < e.maxEpsilon; i++ {
		if !e.running() || !e.scan("", "") {
			return
		}
	}
	e.logger.Warn("input-less transition chain limit reached", "machine", e.def.Name, "state", e.active, "limit", e.maxEpsilon)
}

// scan walks the active state's outgoing transitions in declaration order and
// takes the first ready one. It reports whether a transition was taken.
func (e *Engine) scan(input, value string) bool {
	for _, i := range e.def.Outgoing(e.active) {
		t := e.def.Transitions[i]
		if t.Input != input {
			continue
		}
		if e.ready[i] {
			e.take(i, value)
			return true
		}
		if !e.guard(t, value) {
			continue
		}
		if t.Delay != "" {
			if e.armed(i) {
				continue
			}
			res, err := e.evaluate(domain.ScriptDelay, t.Label(), t.Delay, value)
			if err == nil {
				d, derr := delayOf(res)
				if derr != nil {
					e.logger.Warn("delay ignored", "machine", e.def.Name, "transition", t.Label(), "error", derr)
				} else if d > 0 {
					e.arm(i, d)
					continue
				}
			}
		}
		e.take(i, value)
		return true
	}
	return false
}

func (e *Engine) guard(t domain.TransitionDef, value string) bool {
	if t.Guard == "" {
		return true
	}
	res, err := e.evaluate(domain.ScriptGuard, t.Label(), t.Guard, value)
	if err != nil {
		return false
	}
	ok, isBool := res.(bool)
	return isBool && ok
}

func (e *Engine) take(index int, value string) {
	t := e.def.Transitions[index]
	e.exit()

	e.emit(domain.Trace{Kind: domain.TraceLog, Element: domain.ElementTransition, Name: t.Label()})
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(e.ctx, &domain.TransitionEvent{Timestamp: e.now(), Machine: e.def.Name, Index: index, Def: t})
	}

	target, _ := e.def.State(t.Target)
	e.enter(target)
}

func (e *Engine) exit() {
	for _, i := range e.def.Outgoing(e.active) {
		e.disarm(i)
		delete(e.ready, i)
	}
	if e.hooks.OnStateExit != nil {
		e.hooks.OnStateExit(e.ctx, &domain.StateEvent{Timestamp: e.now(), Machine: e.def.Name, State: e.active})
	}
}

func (e *Engine) enter(s domain.StateDef) {
	e.active = s.Name
	e.enteredAt = e.now()

	if s.Action != "" {
		// Failures are logged by evaluate and never block the entry.
		_, _ = e.evaluate(domain.ScriptAction, s.Name, s.Action, "")
	}

	e.emit(domain.Trace{Kind: domain.TraceLog, Element: domain.ElementState, Name: s.Name})
	e.logger.Debug("state entered", "machine", e.def.Name, "state", s.Name)
	e.publish()
	if e.hooks.OnStateEnter != nil {
		e.hooks.OnStateEnter(e.ctx, &domain.StateEvent{Timestamp: e.enteredAt, Machine: e.def.Name, State: s.Name})
	}

	if s.Final {
		e.emit(domain.Trace{Kind: domain.TraceStop, Element: domain.ElementState, Name: s.Name})
		e.Stop()
	}
}
