package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func TestRun_AtLeastOneStatusBeforeCompleted(t *testing.T) {
	events := Run(context.Background(), func(ctx context.Context, out chan<- Event) {
		em := NewEmitter(ctx, out)
		em.Status("starting", "scanning")
		em.Completed("report.json", "done scanning")
		em.Done("report.json")
	})

	got := drain(t, events, time.Second)
	require.Len(t, got, 3)
	assert.Equal(t, EventStatus, got[0].Type)
	assert.Equal(t, EventCompleted, got[1].Type)
	assert.Equal(t, EventDone, got[2].Type)
}

func TestRun_ExactlyOneTerminalEvent(t *testing.T) {
	events := Run(context.Background(), func(ctx context.Context, out chan<- Event) {
		em := NewEmitter(ctx, out)
		em.Status("starting", "x")
		em.Done("a.json")
		em.Done("b.json") // suppressed: already terminated
	})

	got := drain(t, events, time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, EventDone, got[1].Type)
	assert.Equal(t, "a.json", got[1].Filename)
}

func TestRun_ErrorIsTheOnlyTerminalOnFailure(t *testing.T) {
	events := Run(context.Background(), func(ctx context.Context, out chan<- Event) {
		em := NewEmitter(ctx, out)
		em.Status("starting", "x")
		em.Error("scan", "ScanFailure", "boom", "retry later")
		em.Completed("a.json", "should not send") // suppressed
	})

	got := drain(t, events, time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, EventError, got[1].Type)
	assert.NotEmpty(t, got[1].TraceID)
}

func TestEmitter_SuppressesSendAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 1)
	em := NewEmitter(ctx, out)

	cancel()
	ok := em.Status("stage", "should not be delivered")
	assert.False(t, ok)
	assert.Len(t, out, 0)
}

func TestRun_NoEventsAfterCancellationAcknowledged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	events := Run(ctx, func(ctx context.Context, out chan<- Event) {
		em := NewEmitter(ctx, out)
		em.Status("starting", "x")
		close(started)
		<-ctx.Done()
		// Cancellation observed: must not emit anything further.
	})

	<-started
	cancel()

	got := drain(t, events, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, EventStatus, got[0].Type)
}

func TestEmitter_TerminatedReflectsState(t *testing.T) {
	out := make(chan Event, 4)
	em := NewEmitter(context.Background(), out)

	assert.False(t, em.Terminated())
	em.Status("a", "b")
	assert.False(t, em.Terminated())
	em.Done("file.json")
	assert.True(t, em.Terminated())
}
