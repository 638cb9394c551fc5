package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/proto"
	"github.com/pttalk/presence-server/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Memory, *Registry) {
	t.Helper()

	logger := zerolog.Nop()
	registry := NewRegistry()
	members := store.NewMemory()
	fanout := NewFanout(registry, &logger)
	return NewCoordinator(registry, members, fanout, &logger, time.Second), members, registry
}

// mustParticipants waits for the next conference-participants frame on the
// connection's outbound queue and returns its id -> username mapping.
// Membership order is unspecified, so assertions compare sets.
func mustParticipants(t *testing.T, c *Conn) map[string]string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-c.Out:
			var out proto.Outbound
			if err := json.Unmarshal(payload, &out); err != nil {
				t.Fatalf("unmarshal outbound frame: %v", err)
			}
			if out.Type != proto.OutboundTypeParticipants {
				continue
			}
			got := make(map[string]string, len(out.Participants))
			for _, p := range out.Participants {
				got[p.ID] = p.Username
			}
			return got
		case <-deadline:
			t.Fatal("expected conference-participants frame not received")
		}
	}
}

// mustNoFrame asserts the connection receives nothing.
func mustNoFrame(t *testing.T, c *Conn) {
	t.Helper()

	select {
	case payload := <-c.Out:
		t.Fatalf("expected no frame, got %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func sameParticipants(got map[string]string, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}
	for id, username := range want {
		if got[id] != username {
			return false
		}
	}
	return true
}
