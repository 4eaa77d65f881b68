package ws

import (
	"encoding/json"
	"fmt"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/exec"
)

// EventName identifies a message kind on the wire. The catalog is
// closed: adding a kind means adding a constant and a case to
// DecodeInbound, which keeps handling exhaustive.
type EventName string

const (
	// inbound (client → server)
	EventJoinRoom    EventName = "join-room"
	EventSendMessage EventName = "sendMessage"
	EventExecuteCode EventName = "execute-code"

	// outbound (server → client)
	EventRoomData        EventName = "room-data"
	EventRoomJoined      EventName = "room-joined"
	EventMessage         EventName = "message"
	EventExecutionResult EventName = "execution-result"
)

// Envelope frames every message as {event, data}.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoom binds the connection to a room under a username.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// SendMessage is a chat line addressed to a room.
type SendMessage struct {
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// ExecuteCode asks for a sandbox run of code in a room.
type ExecuteCode struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Username string `json:"username"`
}

// ExecutionResult is the outcome broadcast after a run. On failure
// ConsoleOutput carries whatever the code logged before it failed.
type ExecutionResult struct {
	Success       bool         `json:"success"`
	Result        *exec.Result `json:"result,omitempty"`
	Error         string       `json:"error,omitempty"`
	ConsoleOutput string       `json:"consoleOutput,omitempty"`
}

// DecodeInbound parses a raw frame into one of the inbound kinds:
// JoinRoom, SendMessage, or ExecuteCode.
func DecodeInbound(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bad envelope: %w", err)
	}
	switch env.Event {
	case EventJoinRoom:
		var m JoinRoom
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("bad join-room payload: %w", err)
		}
		return m, nil
	case EventSendMessage:
		var m SendMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("bad sendMessage payload: %w", err)
		}
		return m, nil
	case EventExecuteCode:
		var m ExecuteCode
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("bad execute-code payload: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

// Encode frames data under event as an Envelope.
func Encode(event EventName, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
