package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/core"
	"github.com/pttalk/presence-server/internal/proto"
	"github.com/pttalk/presence-server/internal/store"
)

func startTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	logger := zerolog.Nop()
	registry := core.NewRegistry()
	members := store.NewMemory()
	fanout := core.NewFanout(registry, &logger)
	coordinator := core.NewCoordinator(registry, members, fanout, &logger, time.Second)

	ts := httptest.NewServer(NewRouter(coordinator, members, &logger))
	t.Cleanup(ts.Close)

	return ts, members
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

// readFrame reads outbound frames until one of the wanted type arrives.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, wantType string) proto.Outbound {
	t.Helper()

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read frame waiting for %q: %v", wantType, err)
		}
		if out.Type == wantType {
			return out
		}
	}
}

func participantSet(out proto.Outbound) map[string]string {
	got := make(map[string]string, len(out.Participants))
	for _, p := range out.Participants {
		got[p.ID] = p.Username
	}
	return got
}

func sameSet(got, want map[string]string) bool {
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

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestConferenceScenario(t *testing.T) {
	ts, members := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	defer connA.Close(websocket.StatusNormalClosure, "done")

	// A registers and joins room123.
	if err := wsjson.Write(ctx, connA, proto.Inbound{Type: proto.InboundTypeRegister, UserID: "u1", Username: "Raka"}); err != nil {
		t.Fatalf("register A: %v", err)
	}
	ack := readFrame(t, ctx, connA, proto.OutboundTypeRegisterSuccess)
	if ack.UserID != "u1" {
		t.Fatalf("unexpected register ack: %+v", ack)
	}
	if err := wsjson.Write(ctx, connA, proto.Inbound{Type: proto.InboundTypeJoin, ChannelID: "room123"}); err != nil {
		t.Fatalf("join A: %v", err)
	}
	out := readFrame(t, ctx, connA, proto.OutboundTypeParticipants)
	if !sameSet(participantSet(out), map[string]string{"u1": "Raka"}) {
		t.Fatalf("unexpected participants after A joins: %+v", out.Participants)
	}

	// B registers and joins; both connections see the pair.
	connB := dialWS(t, ctx, ts)
	defer connB.Close(websocket.StatusNormalClosure, "done")

	if err := wsjson.Write(ctx, connB, proto.Inbound{Type: proto.InboundTypeRegister, UserID: "u2", Username: "Amjad"}); err != nil {
		t.Fatalf("register B: %v", err)
	}
	readFrame(t, ctx, connB, proto.OutboundTypeRegisterSuccess)
	if err := wsjson.Write(ctx, connB, proto.Inbound{Type: proto.InboundTypeJoin, ChannelID: "room123"}); err != nil {
		t.Fatalf("join B: %v", err)
	}

	want := map[string]string{"u1": "Raka", "u2": "Amjad"}
	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		out := readFrame(t, ctx, conn, proto.OutboundTypeParticipants)
		if !sameSet(participantSet(out), want) {
			t.Fatalf("conn %s: unexpected participants: %+v", name, out.Participants)
		}
	}

	// B leaves: A gets the shrunken list, B gets nothing further.
	if err := wsjson.Write(ctx, connB, proto.Inbound{Type: proto.InboundTypeLeave}); err != nil {
		t.Fatalf("leave B: %v", err)
	}
	out = readFrame(t, ctx, connA, proto.OutboundTypeParticipants)
	if !sameSet(participantSet(out), map[string]string{"u1": "Raka"}) {
		t.Fatalf("unexpected participants after B leaves: %+v", out.Participants)
	}

	silentCtx, silentCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer silentCancel()
	var stray proto.Outbound
	if err := wsjson.Read(silentCtx, connB, &stray); err == nil {
		t.Fatalf("leaver must receive no further pushes, got %+v", stray)
	}

	// A's socket dies without a leave message; the store ends up empty.
	connA.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for members.HasChannel("room123") {
		if time.Now().After(deadline) {
			t.Fatal("store still holds room123 after last socket closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinBeforeRegisterGetsError(t *testing.T) {
	ts, members := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, ChannelID: "room123"}); err != nil {
		t.Fatalf("premature join: %v", err)
	}
	out := readFrame(t, ctx, conn, proto.OutboundTypeError)
	if out.Error == nil || out.Error.Code != core.ErrCodeNotRegistered {
		t.Fatalf("expected not_registered error, got %+v", out)
	}
	if members.HasChannel("room123") {
		t.Fatal("refused join must not reach the store")
	}

	// The connection is still usable afterwards.
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeRegister, UserID: "u1", Username: "Raka"}); err != nil {
		t.Fatalf("register after refusal: %v", err)
	}
	readFrame(t, ctx, conn, proto.OutboundTypeRegisterSuccess)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, ChannelID: "room123"}); err != nil {
		t.Fatalf("join after register: %v", err)
	}
	readFrame(t, ctx, conn, proto.OutboundTypeParticipants)
}

func TestMalformedMessageKeepsConnectionOpen(t *testing.T) {
	ts, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("this is not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	out := readFrame(t, ctx, conn, proto.OutboundTypeError)
	if out.Error == nil || out.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", out)
	}

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "no-such-type"}); err != nil {
		t.Fatalf("write unknown type: %v", err)
	}
	out = readFrame(t, ctx, conn, proto.OutboundTypeError)
	if out.Error == nil || out.Error.Code != core.ErrCodeUnknownType {
		t.Fatalf("expected unknown_type error, got %+v", out)
	}

	// Still open: a valid register goes through.
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeRegister, UserID: "u1", Username: "Raka"}); err != nil {
		t.Fatalf("register after garbage: %v", err)
	}
	readFrame(t, ctx, conn, proto.OutboundTypeRegisterSuccess)
}

func TestParticipantsEndpoint(t *testing.T) {
	ts, members := startTestServer(t)

	ctx := context.Background()
	if err := members.AddMember(ctx, "room9", "u1"); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := members.AddMember(ctx, "room9", "u2"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	resp, err := ts.Client().Get(ts.URL + "/api/channels/room9/participants")
	if err != nil {
		t.Fatalf("participants request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var body struct {
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	got := make(map[string]struct{}, len(body.Participants))
	for _, id := range body.Participants {
		got[id] = struct{}{}
	}
	if _, ok := got["u1"]; !ok {
		t.Fatalf("missing u1 in %v", body.Participants)
	}
	if _, ok := got["u2"]; !ok {
		t.Fatalf("missing u2 in %v", body.Participants)
	}
}
