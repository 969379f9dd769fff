package sessionguard

import "github.com/rs/zerolog"

// EventBus is the "callback hooks" design note's typed event bus:
// synchronous invocation on the caller's goroutine, callback panics caught
// and logged, never surfaced to the caller that triggered the event.
type EventBus struct {
	logger      zerolog.Logger
	onStarted   []func()
	onLoaded    []func(id string)
	onCreated   []func(id string)
	onDeleted   []func(id string)
	onBinding   []func(id string, reason string)
	onCircuit   []func(state string)
}

// NewEventBus constructs an EventBus that logs callback panics via logger.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// OnStarted registers a callback invoked once the coordinator reaches
// Running.
func (b *EventBus) OnStarted(f func()) { b.onStarted = append(b.onStarted, f) }

// OnLoaded registers a callback invoked after a successful Get/GetOptional.
func (b *EventBus) OnLoaded(f func(id string)) { b.onLoaded = append(b.onLoaded, f) }

// OnCreated registers a callback invoked after Create.
func (b *EventBus) OnCreated(f func(id string)) { b.onCreated = append(b.onCreated, f) }

// OnDeleted registers a callback invoked after Delete.
func (b *EventBus) OnDeleted(f func(id string)) { b.onDeleted = append(b.onDeleted, f) }

// OnBindingFailure registers a callback invoked when a client fingerprint
// fails to match on load (supplements the audit-event behavior of
// paulround2tele-studio's session_service.go's security-violation log,
// without pulling in its audit-log store dependency).
func (b *EventBus) OnBindingFailure(f func(id string, reason string)) {
	b.onBinding = append(b.onBinding, f)
}

// OnCircuitStateChange registers a callback invoked on breaker transitions.
func (b *EventBus) OnCircuitStateChange(f func(state string)) {
	b.onCircuit = append(b.onCircuit, f)
}

func (b *EventBus) emit(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("hook", name).Interface("panic", r).Msg("sessionguard: event hook panicked")
		}
	}()
	fn()
}

func (b *EventBus) fireStarted() {
	for _, f := range b.onStarted {
		f := f
		b.emit("on_started", f)
	}
}

func (b *EventBus) fireLoaded(id string) {
	for _, f := range b.onLoaded {
		f := f
		b.emit("on_loaded", func() { f(id) })
	}
}

func (b *EventBus) fireCreated(id string) {
	for _, f := range b.onCreated {
		f := f
		b.emit("on_created", func() { f(id) })
	}
}

func (b *EventBus) fireDeleted(id string) {
	for _, f := range b.onDeleted {
		f := f
		b.emit("on_deleted", func() { f(id) })
	}
}

func (b *EventBus) fireBindingFailure(id, reason string) {
	for _, f := range b.onBinding {
		f := f
		b.emit("on_binding_failure", func() { f(id, reason) })
	}
}

func (b *EventBus) fireCircuitStateChange(state string) {
	for _, f := range b.onCircuit {
		f := f
		b.emit("on_circuit_state_change", func() { f(state) })
	}
}
