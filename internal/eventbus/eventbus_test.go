package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/encode-manager/internal/encodemgr"
	"github.com/edirooss/encode-manager/internal/eventbus"
)

func TestBus_FanOutToAllSubscribers(t *testing.T) {
	b := eventbus.New(zap.NewNop())

	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.EmitAddEncode(encodemgr.JobID(7))

	for _, ch := range []<-chan eventbus.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, eventbus.KindAddEncode, ev.Kind)
			require.Equal(t, encodemgr.JobID(7), ev.JobID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the published event")
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := eventbus.New(zap.NewNop())
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok, "channel must be closed after Unsubscribe")
}

func TestBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := eventbus.New(zap.NewNop())
	_, ch := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.EmitErrorEncode()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow, never-drained subscriber")
	}

	// Drain whatever made it through; the bus must still be usable afterward.
	for {
		select {
		case <-ch:
			continue
		default:
		}
		break
	}

	_, ch2 := b.Subscribe()
	b.EmitFinishEncode(encodemgr.FinishRecord{})
	select {
	case ev := <-ch2:
		require.Equal(t, eventbus.KindFinishEncode, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("bus stopped delivering to a fresh subscriber")
	}
}
