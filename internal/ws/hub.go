package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/app"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/exec"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/room"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/pkg/metrics"
)

// Hub is the session gateway: it owns every live connection, maps each
// one to at most one room, and turns inbound events into registry
// mutations plus fan-out.
//
// Room-event ordering is serialized under h.mu, so members present now
// and late joiners replaying history observe the same order per room.
// Sandbox runs happen outside the lock on the requesting connection's
// own goroutine, so one slow run never stalls other connections.
type Hub struct {
	log      *slog.Logger
	cfg      app.Config
	registry *room.Registry
	sandbox  *exec.Sandbox

	mu       sync.Mutex
	groups   map[string]map[*session]struct{} // broadcast groups by room ID
	sessions map[*session]struct{}
}

// session is one connection's gateway state. roomID doubles as the
// reverse index from connection to bound room; empty means unbound.
type session struct {
	id       string
	username string
	roomID   string
	out      chan []byte
	limiter  *rate.Limiter
}

// enqueue queues a frame without blocking; a full queue drops it.
func (s *session) enqueue(b []byte) {
	select {
	case s.out <- b:
	default:
	}
}

func NewHub(logger *slog.Logger, cfg app.Config, registry *room.Registry, sandbox *exec.Sandbox) *Hub {
	return &Hub{
		log:      logger,
		cfg:      cfg,
		registry: registry,
		sandbox:  sandbox,
		groups:   map[string]map[*session]struct{}{},
		sessions: map[*session]struct{}{},
	}
}

// ServeWS handles a new /ws connection for its whole lifetime.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := Accept(w, r, h.cfg.WSMaxMsgBytes)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	s := h.newSession()
	h.track(s)
	h.log.Debug("ws.connected", "conn", s.id)

	ctx := r.Context()
	go conn.WriteLoop(ctx, s.out)

	for {
		payload, ok := conn.Read(ctx)
		if !ok {
			break
		}
		if !s.limiter.Allow() {
			h.log.Warn("ws.ratelimited", "conn", s.id)
			continue
		}
		h.dispatch(s, payload)
	}

	h.disconnect(s)
	_ = conn.Close()
}

func (h *Hub) newSession() *session {
	burst := int(h.cfg.WSMsgsPerSec) * 2
	if burst < 1 {
		burst = 1
	}
	return &session{
		id:      uuid.NewString(),
		out:     make(chan []byte, h.cfg.WSSendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.WSMsgsPerSec), burst),
	}
}

func (h *Hub) track(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	metrics.ConnectionsActive.Inc()
}

// Stats reports live room and connection counts.
func (h *Hub) Stats() (rooms, connections int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups), len(h.sessions)
}

// dispatch routes one decoded frame. Malformed or unknown frames are
// logged and dropped; they never tear down the connection.
func (h *Hub) dispatch(s *session, raw []byte) {
	msg, err := DecodeInbound(raw)
	if err != nil {
		h.log.Debug("ws.bad_frame", "conn", s.id, "err", err)
		return
	}
	switch m := msg.(type) {
	case JoinRoom:
		h.handleJoin(s, m)
	case SendMessage:
		h.handleChat(s, m)
	case ExecuteCode:
		h.handleExecute(s, m)
	}
}

// handleJoin binds the connection to a room. Validation failure (or a
// join while already bound) answers the caller only and mutates
// nothing. On success the caller gets the room snapshot and the ack
// before the join event lands, so it sees its own join exactly once,
// via the live stream.
func (h *Hub) handleJoin(s *session, m JoinRoom) {
	if m.RoomID == "" || m.Username == "" || s.roomID != "" {
		h.send(s, EventRoomJoined, false)
		return
	}

	h.mu.Lock()
	grp := h.groups[m.RoomID]
	if grp == nil {
		grp = map[*session]struct{}{}
		h.groups[m.RoomID] = grp
		metrics.RoomsActive.Inc()
	}
	grp[s] = struct{}{}
	s.roomID, s.username = m.RoomID, m.Username

	h.registry.Ensure(m.RoomID)
	snap, _ := h.registry.Snapshot(m.RoomID)
	h.send(s, EventRoomData, snap)
	h.send(s, EventRoomJoined, true)

	h.publishLocked(m.RoomID, room.Event{
		Type: room.EventJoin,
		User: m.Username,
		Text: m.Username + " has joined the room",
	})
	h.mu.Unlock()

	h.log.Info("ws.join", "conn", s.id, "room", m.RoomID, "user", m.Username)
}

// handleChat broadcasts to the target room's group, which may be empty
// or one the sender never joined; history is appended only when the
// room exists in the registry.
func (h *Hub) handleChat(s *session, m SendMessage) {
	h.mu.Lock()
	h.publishLocked(m.RoomID, room.Event{
		Type: room.EventChat,
		User: m.Username,
		Text: m.Message,
	})
	h.mu.Unlock()
}

// handleExecute updates the room's code, runs the sandbox, folds the
// outcome into the registry, and broadcasts the result. The run itself
// happens outside h.mu; only the fold and fan-out are serialized, so
// concurrent executions resolve last-writer-wins in fold order.
func (h *Hub) handleExecute(s *session, m ExecuteCode) {
	h.registry.SetCode(m.RoomID, m.Code)

	start := time.Now()
	res := h.sandbox.Run(m.Code)
	metrics.ExecutionDuration.Observe(time.Since(start).Seconds())

	payload := ExecutionResult{Success: !res.Failed()}
	if res.Failed() {
		metrics.ExecutionsTotal.WithLabelValues("failure").Inc()
		payload.Error = res.Error
		payload.ConsoleOutput = res.ConsoleOutput
		h.log.Info("exec.failure", "conn", s.id, "room", m.RoomID, "err", res.Error)
	} else {
		metrics.ExecutionsTotal.WithLabelValues("success").Inc()
		payload.Result = &res
		h.log.Info("exec.success", "conn", s.id, "room", m.RoomID)
	}

	h.mu.Lock()
	h.registry.SetOutput(m.RoomID, res)
	h.fanoutLocked(m.RoomID, EventExecutionResult, payload)
	h.mu.Unlock()
}

// disconnect runs on transport teardown. A session that never joined
// is just untracked; a bound one is unsubscribed, its leave event
// recorded and broadcast, and the room removed once empty.
func (h *Hub) disconnect(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)

	if s.roomID != "" {
		roomID, username := s.roomID, s.username
		grp := h.groups[roomID]
		if grp != nil {
			delete(grp, s)
		}

		h.publishLocked(roomID, room.Event{
			Type: room.EventLeave,
			User: username,
			Text: username + " has left the room",
		})

		if len(grp) == 0 {
			delete(h.groups, roomID)
			metrics.RoomsActive.Dec()
			h.registry.RemoveIfEmpty(roomID, 0)
			h.log.Info("room.closed", "room", roomID)
		}
		s.roomID, s.username = "", ""
		h.log.Info("ws.leave", "conn", s.id, "room", roomID, "user", username)
	}
	h.mu.Unlock()

	metrics.ConnectionsActive.Dec()
	h.log.Debug("ws.disconnected", "conn", s.id)
}

// publishLocked appends ev to the room's history (when the room
// exists) and fans the same event out to the room's group. Callers
// hold h.mu, which is what gives every member and the history one
// global order per room.
func (h *Hub) publishLocked(roomID string, ev room.Event) {
	h.registry.RecordEvent(roomID, ev)
	metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
	h.fanoutLocked(roomID, EventMessage, ev)
}

// fanoutLocked delivers one frame to every member of a room's group,
// including the originator if subscribed. Unknown rooms fan out to no
// one without error.
func (h *Hub) fanoutLocked(roomID string, event EventName, data any) {
	raw, err := Encode(event, data)
	if err != nil {
		h.log.Error("ws.encode", "event", string(event), "err", err)
		return
	}
	for member := range h.groups[roomID] {
		member.enqueue(raw)
	}
}

// send encodes and queues a frame for a single connection.
func (h *Hub) send(s *session, event EventName, data any) {
	raw, err := Encode(event, data)
	if err != nil {
		h.log.Error("ws.encode", "event", string(event), "err", err)
		return
	}
	s.enqueue(raw)
}
