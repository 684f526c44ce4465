package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquaguard/aquaguard-go/internal/conf"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()

	a, unsubA := bus.Subscribe()
	b, unsubB := bus.Subscribe()
	defer unsubA()
	defer unsubB()

	bus.Publish(EventLeakDetected, map[string]any{"pipeline_id": "P002"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventLeakDetected, ev.Type)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open, "unsubscribe closes the channel")

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventSensorUpdated, nil)

	// Double unsubscribe is safe.
	unsubscribe()
}

func TestBusSlowConsumerDropsEvents(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Nobody drains ch; flooding past the buffer must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(EventSensorUpdated, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestMQTTTopicLayout(t *testing.T) {
	s := &conf.Settings{}
	s.MQTT.TopicPrefix = "aquaguard"

	bridge := NewMQTTBridge(s)
	require.NotNil(t, bridge)
	assert.Equal(t, "aquaguard/leak-detected", bridge.topicFor(EventLeakDetected))
	assert.Equal(t, "aquaguard/sensor-updated", bridge.topicFor(EventSensorUpdated))
}

func TestMQTTPublishWithoutConnectionIsNoop(t *testing.T) {
	s := &conf.Settings{}
	s.MQTT.TopicPrefix = "aquaguard"

	bridge := NewMQTTBridge(s)
	// No client yet; publishing must simply drop the event.
	bridge.publish(Event{Type: EventLeakDetected})
	bridge.Disconnect()
}
