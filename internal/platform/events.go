package platform

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"harmonia/internal/oscillator"
	"harmonia/internal/score"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

type EventKind string

const (
	EventTick                EventKind = "tick"
	EventRegimeChanged       EventKind = "regime-changed"
	EventFlagActivated       EventKind = "flag-activated"
	EventFlagDeactivated     EventKind = "flag-deactivated"
	EventPerturbationStarted EventKind = "perturbation-started"
	EventPerturbationEnded   EventKind = "perturbation-ended"
	EventVariantSpawned      EventKind = "variant-spawned"
)

type PerturbationInfo struct {
	Target float64 `json:"target"`
	Ticks  int     `json:"ticks"`
}

// Event is one state-change notification. Exactly the payload fields
// relevant to the kind are set.
type Event struct {
	Kind         EventKind         `json:"kind"`
	At           time.Time         `json:"at"`
	State        *oscillator.State `json:"state,omitempty"`
	Score        *score.Result     `json:"score,omitempty"`
	Flag         *toggle.Event     `json:"flag,omitempty"`
	Variant      *variant.Agent    `json:"variant,omitempty"`
	Perturbation *PerturbationInfo `json:"perturbation,omitempty"`
}

type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
	kinds   map[EventKind]struct{}
}

func (s subscription) wants(kind EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// emitter dispatches events synchronously, in subscription order, from the
// goroutine that produced the change. Handler panics are recovered so one
// consumer cannot stall the loop.
type emitter struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
}

func newEmitter(logger *zap.Logger) *emitter {
	return &emitter{logger: logger}
}

func (e *emitter) subscribe(handler Handler, kinds ...EventKind) string {
	if handler == nil {
		return ""
	}
	sub := subscription{
		id:      uuid.NewString(),
		handler: handler,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}

	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()
	return sub.id
}

func (e *emitter) unsubscribe(id string) bool {
	if id == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subs {
		if sub.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (e *emitter) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.mu.RLock()
	subs := append([]subscription(nil), e.subs...)
	e.mu.RUnlock()

	for _, event := range events {
		for _, sub := range subs {
			if !sub.wants(event.Kind) {
				continue
			}
			e.invoke(sub, event)
		}
	}
}

func (e *emitter) invoke(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				zap.String("subscription", sub.id),
				zap.String("kind", string(event.Kind)),
				zap.Any("panic", r))
		}
	}()
	sub.handler(event)
}
