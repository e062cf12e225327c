// Package progress implements C9: a lazy, finite sequence of report
// generation progress events, delivered over a bounded channel the HTTP
// layer drains onto a server-sent event stream.
package progress

import (
	"context"

	"github.com/google/uuid"
)

// EventType names one of the five SSE payload shapes.
type EventType string

const (
	EventStatus    EventType = "status"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one frame of the stream. Only the fields relevant to Type are
// populated; the rest are zero.
type Event struct {
	Type EventType

	// status
	Stage   string
	Message string

	// progress
	Percent float64

	// completed / done
	Filename string

	// error
	ErrorType    string
	ErrorMessage string
	TraceID      string
	Hint         string
}

// StatusEvent builds a `status` frame.
func StatusEvent(stage, message string) Event {
	return Event{Type: EventStatus, Stage: stage, Message: message}
}

// ProgressEvent builds a `progress` frame.
func ProgressEvent(stage string, percent float64) Event {
	return Event{Type: EventProgress, Stage: stage, Percent: percent}
}

// CompletedEvent builds a `completed` frame.
func CompletedEvent(filename, message string) Event {
	return Event{Type: EventCompleted, Filename: filename, Message: message}
}

// DoneEvent builds the terminal success frame.
func DoneEvent(filename string) Event {
	return Event{Type: EventDone, Filename: filename}
}

// ErrorEvent builds the terminal failure frame. A trace ID is minted here so
// a caller never has to thread one through the whole producer.
func ErrorEvent(stage, errType, message, hint string) Event {
	return Event{
		Type:         EventError,
		Stage:        stage,
		ErrorType:    errType,
		ErrorMessage: message,
		TraceID:      uuid.New().String(),
		Hint:         hint,
	}
}

// Producer emits Events onto out and returns once a terminal event (done or
// error) has been sent, or ctx is cancelled. Producer must not emit anything
// after observing ctx.Done(): the caller sees cancellation as the absence of
// a terminal event, not as an extra error frame.
type Producer func(ctx context.Context, out chan<- Event)

// Emitter wraps a channel with cancellation-aware, at-most-once-terminal
// send semantics so a Producer body can just call Status/Progress/... and
// never worry about writing past client disconnect or past its own
// terminal frame.
type Emitter struct {
	ctx        context.Context
	out        chan<- Event
	terminated bool
}

// NewEmitter wraps out for a single producer run under ctx.
func NewEmitter(ctx context.Context, out chan<- Event) *Emitter {
	return &Emitter{ctx: ctx, out: out}
}

// Send delivers ev unless the context is already done or a terminal event
// has already been sent. It returns false when the send was suppressed,
// which a Producer should treat as "stop working now".
func (e *Emitter) Send(ev Event) bool {
	if e.terminated {
		return false
	}
	select {
	case <-e.ctx.Done():
		return false
	default:
	}

	select {
	case e.out <- ev:
	case <-e.ctx.Done():
		return false
	}

	if ev.Type == EventDone || ev.Type == EventError {
		e.terminated = true
	}
	return true
}

// Status emits a status event.
func (e *Emitter) Status(stage, message string) bool { return e.Send(StatusEvent(stage, message)) }

// Progress emits a progress event.
func (e *Emitter) Progress(stage string, percent float64) bool {
	return e.Send(ProgressEvent(stage, percent))
}

// Completed emits a completed event.
func (e *Emitter) Completed(filename, message string) bool {
	return e.Send(CompletedEvent(filename, message))
}

// Done emits the terminal success event.
func (e *Emitter) Done(filename string) bool { return e.Send(DoneEvent(filename)) }

// Error emits the terminal failure event.
func (e *Emitter) Error(stage, errType, message, hint string) bool {
	return e.Send(ErrorEvent(stage, errType, message, hint))
}

// Terminated reports whether a terminal event has already been sent.
func (e *Emitter) Terminated() bool { return e.terminated }

// Run executes produce on a bounded, buffered channel and returns it to the
// caller (typically an SSE handler) to drain. The channel is closed when
// produce returns; a cancelled ctx closes it only once produce observes the
// cancellation and returns.
func Run(ctx context.Context, produce Producer) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		produce(ctx, out)
	}()
	return out
}
