package session

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
)

// Message is a control-plane message received over the control channel.
type Message struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

type (
	StateHandler   func(domain.ConnectionState)
	StreamHandler  func(core.RemoteStream)
	ErrorHandler   func(error)
	MessageHandler func(Message)
)

type subscription[T any] struct {
	id uint64
	fn T
}

// handlers keeps subscribers in subscription order.
type handlers[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription[T]
}

func (h *handlers[T]) add(fn T) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	h.subs = append(h.subs, subscription[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *handlers[T]) snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]T, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s.fn)
	}
	return out
}

// Emitter is the observer registry of one Manager. Handlers run
// synchronously on the goroutine that produced the event and must not call
// Connect or Disconnect on the same manager.
type Emitter struct {
	state    handlers[StateHandler]
	stream   handlers[StreamHandler]
	errs     handlers[ErrorHandler]
	messages handlers[MessageHandler]
}

func NewEmitter() *Emitter { return &Emitter{} }

// Each On* method returns a func that removes the handler.

func (e *Emitter) OnStateChange(fn StateHandler) func() { return e.state.add(fn) }
func (e *Emitter) OnStream(fn StreamHandler) func()     { return e.stream.add(fn) }
func (e *Emitter) OnError(fn ErrorHandler) func()       { return e.errs.add(fn) }
func (e *Emitter) OnMessage(fn MessageHandler) func()   { return e.messages.add(fn) }

func (e *Emitter) emitState(s domain.ConnectionState) {
	for _, fn := range e.state.snapshot() {
		fn(s)
	}
}

func (e *Emitter) emitStream(s core.RemoteStream) {
	for _, fn := range e.stream.snapshot() {
		fn(s)
	}
}

func (e *Emitter) emitError(err error) {
	for _, fn := range e.errs.snapshot() {
		fn(err)
	}
}

func (e *Emitter) emitMessage(m Message) {
	for _, fn := range e.messages.snapshot() {
		fn(m)
	}
}
