package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/app"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/exec"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/room"
)

func testHub() *Hub {
	cfg := app.Config{
		WSMsgsPerSec: 100,
		WSSendBuffer: 64,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(logger, cfg, room.NewRegistry(), exec.New(0))
}

// recv pops the next queued frame for s. Handlers are synchronous, so
// anything they produced is already in the queue.
func recv(t *testing.T, s *session) Envelope {
	t.Helper()
	select {
	case b := <-s.out:
		var env Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return env
	default:
		t.Fatal("no frame queued")
		return Envelope{}
	}
}

func recvNone(t *testing.T, s *session) {
	t.Helper()
	select {
	case b := <-s.out:
		t.Fatalf("unexpected frame: %s", b)
	default:
	}
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("bad %s payload: %v", env.Event, err)
	}
	return v
}

func join(t *testing.T, h *Hub, s *session, roomID, user string) {
	t.Helper()
	h.handleJoin(s, JoinRoom{RoomID: roomID, Username: user})
	for i := 0; i < 3; i++ {
		recv(t, s) // room-data, room-joined, own join message
	}
}

func TestJoinValidation(t *testing.T) {
	h := testHub()

	for _, m := range []JoinRoom{
		{RoomID: "", Username: "alice"},
		{RoomID: "room-1", Username: ""},
		{},
	} {
		s := h.newSession()
		h.handleJoin(s, m)

		env := recv(t, s)
		if env.Event != EventRoomJoined {
			t.Fatalf("got event %s, want room-joined", env.Event)
		}
		if decode[bool](t, env) {
			t.Error("join ack should be false")
		}
		recvNone(t, s)
	}

	if h.registry.Len() != 0 {
		t.Error("failed joins must not touch the registry")
	}
	if rooms, _ := h.Stats(); rooms != 0 {
		t.Error("failed joins must not create broadcast groups")
	}
}

func TestJoinSuccessSequence(t *testing.T) {
	h := testHub()
	s := h.newSession()

	h.handleJoin(s, JoinRoom{RoomID: "room-1", Username: "alice"})

	env := recv(t, s)
	if env.Event != EventRoomData {
		t.Fatalf("first frame %s, want room-data", env.Event)
	}
	snap := decode[room.Snapshot](t, env)
	if snap.Code != "" || len(snap.Messages) != 0 {
		t.Errorf("fresh room snapshot not empty: %+v", snap)
	}

	env = recv(t, s)
	if env.Event != EventRoomJoined || !decode[bool](t, env) {
		t.Fatalf("second frame should be room-joined:true, got %s", env.Event)
	}

	// The joiner sees its own join via the live stream, exactly once
	env = recv(t, s)
	if env.Event != EventMessage {
		t.Fatalf("third frame %s, want message", env.Event)
	}
	ev := decode[room.Event](t, env)
	if ev.Type != room.EventJoin || ev.User != "alice" || ev.Text != "alice has joined the room" {
		t.Errorf("unexpected join event: %+v", ev)
	}
	recvNone(t, s)

	snap2, ok := h.registry.Snapshot("room-1")
	if !ok || len(snap2.Messages) != 1 || snap2.Messages[0].Type != room.EventJoin {
		t.Errorf("join event not recorded: %+v", snap2)
	}
}

func TestJoinWhileBound(t *testing.T) {
	h := testHub()
	s := h.newSession()
	join(t, h, s, "room-1", "alice")

	h.handleJoin(s, JoinRoom{RoomID: "room-2", Username: "alice"})
	env := recv(t, s)
	if env.Event != EventRoomJoined || decode[bool](t, env) {
		t.Error("second join while bound should be acked false")
	}
	if s.roomID != "room-1" {
		t.Errorf("binding changed to %q", s.roomID)
	}
	if h.registry.Len() != 1 {
		t.Error("rejected join must not create a room")
	}
}

func TestLateJoinerSeesHistory(t *testing.T) {
	h := testHub()
	s1 := h.newSession()
	join(t, h, s1, "room-1", "alice")
	h.handleChat(s1, SendMessage{RoomID: "room-1", Message: "hello", Username: "alice"})
	recv(t, s1) // alice's own chat broadcast

	s2 := h.newSession()
	h.handleJoin(s2, JoinRoom{RoomID: "room-1", Username: "bob"})

	snap := decode[room.Snapshot](t, recv(t, s2))
	if len(snap.Messages) != 2 {
		t.Fatalf("late joiner history has %d events, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Type != room.EventJoin || snap.Messages[1].Type != room.EventChat {
		t.Errorf("history out of order: %+v", snap.Messages)
	}

	recv(t, s2) // room-joined
	ownJoin := recv(t, s2)
	if ev := decode[room.Event](t, ownJoin); ev.User != "bob" {
		t.Errorf("expected bob's own join, got %+v", ev)
	}
	recvNone(t, s2)

	// alice sees bob's join too
	if ev := decode[room.Event](t, recv(t, s1)); ev.Type != room.EventJoin || ev.User != "bob" {
		t.Errorf("alice missed bob's join: %+v", ev)
	}
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	h := testHub()
	s1 := h.newSession()
	s2 := h.newSession()
	join(t, h, s1, "room-1", "alice")
	join(t, h, s2, "room-1", "bob")
	recv(t, s1) // bob's join

	h.handleChat(s1, SendMessage{RoomID: "room-1", Message: "hi", Username: "alice"})

	for _, s := range []*session{s1, s2} {
		ev := decode[room.Event](t, recv(t, s))
		if ev.Type != room.EventChat || ev.User != "alice" || ev.Text != "hi" {
			t.Errorf("bad chat event: %+v", ev)
		}
	}

	snap, _ := h.registry.Snapshot("room-1")
	last := snap.Messages[len(snap.Messages)-1]
	if last.Type != room.EventChat || last.Text != "hi" {
		t.Errorf("chat not recorded: %+v", last)
	}
}

func TestChatToUnknownRoom(t *testing.T) {
	h := testHub()
	s := h.newSession()

	// No members, no registry entry: broadcast to no one, no error
	h.handleChat(s, SendMessage{RoomID: "ghost", Message: "anyone?", Username: "alice"})

	recvNone(t, s)
	if h.registry.Len() != 0 {
		t.Error("chat must not create rooms")
	}
}

func TestDisconnectLastMemberRemovesRoom(t *testing.T) {
	h := testHub()
	s := h.newSession()
	h.track(s)
	join(t, h, s, "room-1", "alice")
	h.handleExecute(s, ExecuteCode{RoomID: "room-1", Code: "1+1", Username: "alice"})
	recv(t, s)

	h.disconnect(s)

	if h.registry.Len() != 0 {
		t.Error("room should be removed when its last member disconnects")
	}
	if rooms, conns := h.Stats(); rooms != 0 || conns != 0 {
		t.Errorf("stats = %d rooms %d conns, want 0/0", rooms, conns)
	}

	// Re-join creates a fresh room: no code, history, or output survive
	s2 := h.newSession()
	h.handleJoin(s2, JoinRoom{RoomID: "room-1", Username: "bob"})
	snap := decode[room.Snapshot](t, recv(t, s2))
	if snap.Code != "" || len(snap.Messages) != 0 || snap.Output.ReturnValue != nil {
		t.Errorf("state survived full evacuation: %+v", snap)
	}
}

func TestDisconnectBeforeJoin(t *testing.T) {
	h := testHub()
	s := h.newSession()
	h.track(s)

	h.disconnect(s) // must be a no-op besides untracking

	if h.registry.Len() != 0 {
		t.Error("disconnect without join touched the registry")
	}
}

func TestDisconnectBroadcastsLeave(t *testing.T) {
	h := testHub()
	s1 := h.newSession()
	s2 := h.newSession()
	h.track(s1)
	h.track(s2)
	join(t, h, s1, "room-1", "alice")
	join(t, h, s2, "room-1", "bob")
	recv(t, s1) // bob's join

	h.disconnect(s2)

	ev := decode[room.Event](t, recv(t, s1))
	if ev.Type != room.EventLeave || ev.User != "bob" || ev.Text != "bob has left the room" {
		t.Errorf("bad leave event: %+v", ev)
	}

	snap, ok := h.registry.Snapshot("room-1")
	if !ok {
		t.Fatal("room should survive while alice remains")
	}
	if last := snap.Messages[len(snap.Messages)-1]; last.Type != room.EventLeave {
		t.Errorf("leave not recorded: %+v", last)
	}
}

func TestExecuteUpdatesCodeAndOutput(t *testing.T) {
	h := testHub()
	s := h.newSession()
	join(t, h, s, "room-1", "alice")

	h.handleExecute(s, ExecuteCode{RoomID: "room-1", Code: "2+2", Username: "alice"})

	env := recv(t, s)
	if env.Event != EventExecutionResult {
		t.Fatalf("got event %s, want execution-result", env.Event)
	}
	res := decode[ExecutionResult](t, env)
	if !res.Success || res.Result == nil || res.Result.ReturnValue == nil || *res.Result.ReturnValue != "4" {
		t.Errorf("bad result: %+v", res)
	}

	snap, _ := h.registry.Snapshot("room-1")
	if snap.Code != "2+2" {
		t.Errorf("code buffer = %q, want %q", snap.Code, "2+2")
	}
	if snap.Output.ReturnValue == nil || *snap.Output.ReturnValue != "4" {
		t.Errorf("output not folded into room: %+v", snap.Output)
	}
}

func TestExecuteFailureBroadcast(t *testing.T) {
	h := testHub()
	s := h.newSession()
	join(t, h, s, "room-1", "alice")

	h.handleExecute(s, ExecuteCode{
		RoomID:   "room-1",
		Code:     `console.log("partial"); throw new Error("x")`,
		Username: "alice",
	})

	res := decode[ExecutionResult](t, recv(t, s))
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Error != "x" {
		t.Errorf("error = %q, want %q", res.Error, "x")
	}
	if res.ConsoleOutput != "partial" {
		t.Errorf("partial console output lost: %q", res.ConsoleOutput)
	}

	snap, _ := h.registry.Snapshot("room-1")
	if snap.Output.Error != "x" {
		t.Errorf("failure outcome not stored: %+v", snap.Output)
	}
}

func TestExecuteFromNonMember(t *testing.T) {
	h := testHub()
	member := h.newSession()
	join(t, h, member, "room-1", "alice")

	// Unbound connection executes into alice's room: still honored
	outsider := h.newSession()
	h.handleExecute(outsider, ExecuteCode{RoomID: "room-1", Code: "40+2", Username: "mallory"})

	res := decode[ExecutionResult](t, recv(t, member))
	if !res.Success || *res.Result.ReturnValue != "42" {
		t.Errorf("member did not receive outsider's result: %+v", res)
	}
	recvNone(t, outsider) // not subscribed, gets nothing

	snap, _ := h.registry.Snapshot("room-1")
	if snap.Code != "40+2" {
		t.Errorf("code buffer = %q, want %q", snap.Code, "40+2")
	}
}

func TestExecuteUnknownRoom(t *testing.T) {
	h := testHub()
	s := h.newSession()

	h.handleExecute(s, ExecuteCode{RoomID: "ghost", Code: "1+1", Username: "alice"})

	recvNone(t, s)
	if h.registry.Len() != 0 {
		t.Error("execute must not create rooms")
	}
}

func TestSequentialExecutesLastWins(t *testing.T) {
	h := testHub()
	s := h.newSession()
	join(t, h, s, "room-1", "alice")

	h.handleExecute(s, ExecuteCode{RoomID: "room-1", Code: "1", Username: "alice"})
	h.handleExecute(s, ExecuteCode{RoomID: "room-1", Code: "2", Username: "alice"})

	snap, _ := h.registry.Snapshot("room-1")
	if snap.Output.ReturnValue == nil || *snap.Output.ReturnValue != "2" {
		t.Errorf("output should reflect the last execution, got %+v", snap.Output)
	}
	if snap.Code != "2" {
		t.Errorf("code should reflect the last execution, got %q", snap.Code)
	}
}
