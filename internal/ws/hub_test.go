package ws

import (
	"encoding/json"
	"testing"

	"mining_webapp/internal/mining"
)

func TestHubPushStateFansOutPerUser(t *testing.T) {
	hub := NewHub()

	a := NewClient(1, nil)
	b := NewClient(1, nil)
	other := NewClient(2, nil)
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	hub.PushState(mining.State{UserID: 1, Pending: 3.5, TierID: 1})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.Send:
			var env stateEnvelope
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("unmarshal push: %v", err)
			}
			if env.Type != "session_state" || env.Data.Pending != 3.5 {
				t.Fatalf("unexpected payload: %+v", env)
			}
		default:
			t.Fatal("client did not receive state push")
		}
	}

	select {
	case <-other.Send:
		t.Fatal("other user's client must not receive the push")
	default:
	}
}

func TestHubUnregisterCountsRemaining(t *testing.T) {
	hub := NewHub()
	a := NewClient(1, nil)
	b := NewClient(1, nil)
	hub.Register(a)
	hub.Register(b)

	if remaining := hub.Unregister(a); remaining != 1 {
		t.Fatalf("remaining after first unregister = %d; want 1", remaining)
	}
	if remaining := hub.Unregister(b); remaining != 0 {
		t.Fatalf("remaining after last unregister = %d; want 0", remaining)
	}
	// duplicate unregister is harmless
	if remaining := hub.Unregister(b); remaining != 0 {
		t.Fatalf("remaining after duplicate unregister = %d; want 0", remaining)
	}
}
