package ws

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/converse-live/backend/internal/protocol"
)

// TestRegistryClientManagement tests client registration and lookup
func TestRegistryClientManagement(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Close()

	client1 := NewClient(nil, "client-a")
	client2 := NewClient(nil, "client-b")

	registry.Register(client1)
	registry.Register(client2)

	if registry.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", registry.ClientCount())
	}

	if registry.Get("client-a") != client1 {
		t.Error("expected lookup to return registered client")
	}

	registry.Unregister(client1)
	if registry.ClientCount() != 1 {
		t.Errorf("expected 1 client after unregister, got %d", registry.ClientCount())
	}
	if registry.Get("client-a") != nil {
		t.Error("expected unregistered client to be removed")
	}
	if !client1.IsClosed() {
		t.Error("expected unregistered client to be closed")
	}
}

// TestRegistryReplacesConnection tests that a second connection for the same
// identity replaces the first
func TestRegistryReplacesConnection(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Close()

	first := NewClient(nil, "client-a")
	second := NewClient(nil, "client-a")

	registry.Register(first)
	registry.Register(second)

	if registry.ClientCount() != 1 {
		t.Errorf("expected 1 client after replacement, got %d", registry.ClientCount())
	}
	if registry.Get("client-a") != second {
		t.Error("expected the replacement connection to be registered")
	}
	if !first.IsClosed() {
		t.Error("expected the replaced connection to be closed")
	}

	// The stale connection's read pump exiting must not evict the replacement
	registry.Unregister(first)
	if registry.Get("client-a") != second {
		t.Error("expected replacement to survive stale unregister")
	}
}

// TestSendEventDelivery tests that events reach only the named client
func TestSendEventDelivery(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Close()

	clientA := NewClient(nil, "client-a")
	clientB := NewClient(nil, "client-b")
	registry.Register(clientA)
	registry.Register(clientB)

	registry.SendEvent("client-a", &protocol.Envelope{
		Type: protocol.EventAIResponse,
		Text: "Hello",
	})

	frame := receiveWithTimeout(t, clientA, 100*time.Millisecond)
	if frame == nil {
		t.Fatal("client-a did not receive the event")
	}

	env, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("failed to decode delivered frame: %v", err)
	}
	if env.Type != protocol.EventAIResponse || env.Text != "Hello" {
		t.Errorf("delivered event mismatch: type=%s text=%q", env.Type, env.Text)
	}

	if got := receiveWithTimeout(t, clientB, 50*time.Millisecond); got != nil {
		t.Errorf("client-b received an event addressed to client-a: %s", got)
	}
}

// TestSendEventDisconnectedClient tests that events for unknown clients are dropped
func TestSendEventDisconnectedClient(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Close()

	// Must not panic or block
	registry.SendEvent("nobody", &protocol.Envelope{Type: protocol.EventAIThinking})
}

// TestSendToClosedClient tests that queuing to a closed client is a no-op
func TestSendToClosedClient(t *testing.T) {
	client := NewClient(nil, "client-a")
	client.Close()

	// Must not panic on the closed send channel
	client.Send([]byte(`{"type":"ai-thinking"}`))

	if !client.IsClosed() {
		t.Error("expected client to stay closed")
	}
}

// TestRegistryClose tests that Close disconnects every client
func TestRegistryClose(t *testing.T) {
	registry := NewRegistry(nil)

	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = NewClient(nil, string(rune('a'+i)))
		registry.Register(clients[i])
	}

	registry.Close()

	if registry.ClientCount() != 0 {
		t.Errorf("expected 0 clients after close, got %d", registry.ClientCount())
	}
	for i, client := range clients {
		if !client.IsClosed() {
			t.Errorf("client %d not closed", i)
		}
	}
}

// TestEnvelopeRoundTripProperty checks that any event survives the wire format
// with its payload intact.
func TestEnvelopeRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	eventTypeGen := gen.OneConstOf(
		protocol.EventAIResponse,
		protocol.EventAIThinking,
		protocol.EventSessionReady,
		protocol.EventModeChanged,
		protocol.EventAIStopped,
		protocol.EventError,
	)

	properties.Property("delivered frames decode to the queued event", prop.ForAll(
		func(eventType protocol.EventType, text string) bool {
			registry := NewRegistry(nil)
			defer registry.Close()

			client := NewClient(nil, "client-a")
			registry.Register(client)

			registry.SendEvent("client-a", &protocol.Envelope{
				Type: eventType,
				Text: text,
			})

			select {
			case frame := <-client.SendChan():
				env, err := protocol.Decode(frame)
				if err != nil {
					return false
				}
				return env.Type == eventType && env.Text == text
			case <-time.After(100 * time.Millisecond):
				return false
			}
		},
		eventTypeGen,
		gen.AnyString(),
	))

	properties.Property("truncated frames never decode", prop.ForAll(
		func(junk string) bool {
			// An unterminated object is never valid JSON
			_, err := protocol.Decode([]byte("{" + junk))
			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Helper function
func receiveWithTimeout(t *testing.T, client *Client, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-client.SendChan():
		return data
	case <-time.After(timeout):
		return nil
	}
}
