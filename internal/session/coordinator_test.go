package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pampa/chatd/internal/history"
	"github.com/pampa/chatd/internal/model"
	"github.com/pampa/chatd/internal/registry"
	"github.com/pampa/chatd/internal/room"
	"github.com/pampa/chatd/internal/router"
)

// recordingPusher captures frames delivered to one connection.
type recordingPusher struct {
	mu     sync.Mutex
	frames [][]byte
}

func (p *recordingPusher) Push(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, append([]byte(nil), data...))
	return nil
}

func (p *recordingPusher) Close() {}

// typed decodes the frames into generic envelopes and returns their types.
func (p *recordingPusher) typed(t *testing.T) []string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.frames))
	for _, data := range p.frames {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("frame does not decode: %v", err)
		}
		types = append(types, env.Type)
	}
	return types
}

func (p *recordingPusher) count(t *testing.T, frameType string) int {
	t.Helper()
	n := 0
	for _, typ := range p.typed(t) {
		if typ == frameType {
			n++
		}
	}
	return n
}

func newCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	reg := registry.New(nil)
	dir := room.New(room.Config{}, reg, nil)
	store := history.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	rt := router.New(router.DefaultConfig(), reg, dir, store, nil)
	return New(cfg, reg, dir, rt, store, nil)
}

func inbound(t *testing.T, frameType, roomID, body string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"type":    frameType,
		"room_id": roomID,
		"body":    body,
	})
	if err != nil {
		t.Fatalf("marshal inbound frame: %v", err)
	}
	return data
}

func TestConnectStateMachine(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	p := &recordingPusher{}
	handle, err := c.OnConnect("alice", p)
	if err != nil {
		t.Fatalf("OnConnect failed: %v", err)
	}
	if got := c.SessionState(handle); got != StateConnected {
		t.Errorf("state after connect = %v, want %v", got, StateConnected)
	}

	if err := c.OnMessage(ctx, handle, inbound(t, "join", "lobby", "")); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if got := c.SessionState(handle); got != StateInRoom {
		t.Errorf("state after join = %v, want %v", got, StateInRoom)
	}

	if err := c.OnMessage(ctx, handle, inbound(t, "leave", "lobby", "")); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if got := c.SessionState(handle); got != StateIdle {
		t.Errorf("state after leaving last room = %v, want %v", got, StateIdle)
	}

	c.OnDisconnect(ctx, handle)
	if got := c.SessionState(handle); got != StateDisconnected {
		t.Errorf("state after disconnect = %v, want %v", got, StateDisconnected)
	}
}

func TestAnonymousIdentity(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())

	handle, err := c.OnConnect("", &recordingPusher{})
	if err != nil {
		t.Fatalf("OnConnect failed: %v", err)
	}

	conn, err := c.Registry().Lookup(handle)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if conn.Identity != "anonymous" {
		t.Errorf("Identity = %q, want anonymous", conn.Identity)
	}
}

func TestJoinAcknowledged(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	p := &recordingPusher{}
	handle, _ := c.OnConnect("alice", p)

	if err := c.OnMessage(ctx, handle, inbound(t, "join", "lobby", "")); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if got := p.count(t, model.FrameJoined); got != 1 {
		t.Fatalf("joined acks = %d, want 1", got)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, data := range p.frames {
		var ack struct {
			Type    string   `json:"type"`
			RoomID  string   `json:"room_id"`
			Members []string `json:"members"`
		}
		if json.Unmarshal(data, &ack) == nil && ack.Type == model.FrameJoined {
			if ack.RoomID != "lobby" {
				t.Errorf("ack room = %q, want lobby", ack.RoomID)
			}
			if len(ack.Members) != 1 || ack.Members[0] != "alice" {
				t.Errorf("ack members = %v, want [alice]", ack.Members)
			}
		}
	}
}

func TestSendRoundTrip(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	alicePush := &recordingPusher{}
	alice, _ := c.OnConnect("alice", alicePush)
	bobPush := &recordingPusher{}
	bob, _ := c.OnConnect("bob", bobPush)

	c.OnMessage(ctx, alice, inbound(t, "join", "lobby", ""))
	c.OnMessage(ctx, bob, inbound(t, "join", "lobby", ""))

	if err := c.OnMessage(ctx, alice, inbound(t, "send", "lobby", "hi")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// Echo is on by default; both sides see the chat frame.
	if got := alicePush.count(t, model.FrameMessage); got != 1 {
		t.Errorf("alice chat frames = %d, want 1", got)
	}
	if got := bobPush.count(t, model.FrameMessage); got != 1 {
		t.Errorf("bob chat frames = %d, want 1", got)
	}
}

func TestHistoryReplayOnJoin(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	alice, _ := c.OnConnect("alice", &recordingPusher{})
	c.OnMessage(ctx, alice, inbound(t, "join", "lobby", ""))
	c.OnMessage(ctx, alice, inbound(t, "send", "lobby", "first"))
	c.OnMessage(ctx, alice, inbound(t, "send", "lobby", "second"))

	bobPush := &recordingPusher{}
	bob, _ := c.OnConnect("bob", bobPush)
	c.OnMessage(ctx, bob, inbound(t, "join", "lobby", ""))

	if got := bobPush.count(t, model.FrameHistory); got != 1 {
		t.Fatalf("bob history frames = %d, want 1", got)
	}
	// The earlier messages arrived only via replay, never as live frames.
	if got := bobPush.count(t, model.FrameMessage); got != 0 {
		t.Errorf("bob live chat frames = %d, want 0", got)
	}
}

func TestRejoinSkipsReplay(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	alice, _ := c.OnConnect("alice", &recordingPusher{})
	c.OnMessage(ctx, alice, inbound(t, "join", "lobby", ""))
	c.OnMessage(ctx, alice, inbound(t, "send", "lobby", "hi"))

	bobPush := &recordingPusher{}
	bob, _ := c.OnConnect("bob", bobPush)
	c.OnMessage(ctx, bob, inbound(t, "join", "lobby", ""))
	c.OnMessage(ctx, bob, inbound(t, "join", "lobby", ""))

	if got := bobPush.count(t, model.FrameHistory); got != 1 {
		t.Errorf("history frames after rejoin = %d, want 1", got)
	}
	if got := bobPush.count(t, model.FrameJoined); got != 2 {
		t.Errorf("joined acks = %d, want 2 (join is idempotent, ack is not)", got)
	}
}

func TestExplicitHistoryQuery(t *testing.T) {
	c := newCoordinator(t, Config{ReplayLimit: 0})
	ctx := context.Background()

	alice, _ := c.OnConnect("alice", &recordingPusher{})
	c.OnMessage(ctx, alice, inbound(t, "join", "lobby", ""))
	for _, body := range []string{"one", "two", "three"} {
		c.OnMessage(ctx, alice, inbound(t, "send", "lobby", body))
	}

	p := &recordingPusher{}
	bob, _ := c.OnConnect("bob", p)

	raw, _ := json.Marshal(map[string]any{
		"type":    "history",
		"room_id": "lobby",
		"since":   int64(2),
	})
	if err := c.OnMessage(ctx, bob, raw); err != nil {
		t.Fatalf("history query failed: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(p.frames))
	}
	var hist struct {
		Type     string          `json:"type"`
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(p.frames[0], &hist); err != nil {
		t.Fatalf("history frame does not decode: %v", err)
	}
	if hist.Type != model.FrameHistory {
		t.Fatalf("frame type = %q, want %q", hist.Type, model.FrameHistory)
	}
	for _, m := range hist.Messages {
		if m.Seq <= 2 {
			t.Errorf("history returned seq %d, want only seq > 2", m.Seq)
		}
	}
}

func TestMalformedFrame(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	p := &recordingPusher{}
	handle, _ := c.OnConnect("alice", p)

	if err := c.OnMessage(ctx, handle, []byte("{not json")); err == nil {
		t.Fatal("malformed frame accepted, want error")
	}
	if got := p.count(t, model.FrameError); got != 1 {
		t.Errorf("error frames = %d, want 1", got)
	}

	// The session survives the bad frame.
	if err := c.OnMessage(ctx, handle, inbound(t, "join", "lobby", "")); err != nil {
		t.Errorf("join after malformed frame failed: %v", err)
	}
}

func TestUnknownFrameType(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())

	p := &recordingPusher{}
	handle, _ := c.OnConnect("alice", p)

	err := c.OnMessage(context.Background(), handle, inbound(t, "shout", "lobby", "HI"))
	if err == nil {
		t.Fatal("unknown frame type accepted, want error")
	}
	if got := p.count(t, model.FrameError); got != 1 {
		t.Errorf("error frames = %d, want 1", got)
	}
}

func TestSendWithoutJoin(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	alice, _ := c.OnConnect("alice", &recordingPusher{})
	c.OnMessage(ctx, alice, inbound(t, "join", "lobby", ""))

	p := &recordingPusher{}
	bob, _ := c.OnConnect("bob", p)

	err := c.OnMessage(ctx, bob, inbound(t, "send", "lobby", "sneaky"))
	if !errors.Is(err, router.ErrNotAMember) {
		t.Errorf("send without join error = %v, want ErrNotAMember", err)
	}
	if got := p.count(t, model.FrameError); got != 1 {
		t.Errorf("error frames = %d, want 1", got)
	}
}

func TestDisconnectCascades(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	alicePush := &recordingPusher{}
	alice, _ := c.OnConnect("alice", alicePush)
	bob, _ := c.OnConnect("bob", &recordingPusher{})

	c.OnMessage(ctx, alice, inbound(t, "join", "lobby", ""))
	c.OnMessage(ctx, bob, inbound(t, "join", "lobby", ""))

	c.OnDisconnect(ctx, bob)

	// Alice received bob's leave notice with bob's identity resolved.
	if got := alicePush.count(t, model.FrameUserLeft); got != 1 {
		t.Fatalf("leave notices = %d, want 1", got)
	}

	members, err := c.Directory().Members("lobby")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 1 || members[0] != alice {
		t.Errorf("members after disconnect = %v, want [alice]", members)
	}

	if c.Registry().Active(bob) {
		t.Error("disconnected handle still active in registry")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	c := newCoordinator(t, DefaultConfig())
	ctx := context.Background()

	handle, _ := c.OnConnect("alice", &recordingPusher{})
	c.OnMessage(ctx, handle, inbound(t, "join", "lobby", ""))

	c.OnDisconnect(ctx, handle)
	c.OnDisconnect(ctx, handle)

	if err := c.OnMessage(ctx, handle, inbound(t, "send", "lobby", "ghost")); !errors.Is(err, registry.ErrUnknownConnection) {
		t.Errorf("message after disconnect error = %v, want ErrUnknownConnection", err)
	}
}
