package lcu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Topics the monitor cares about.
const (
	TopicGameflowPhase = "OnJsonApiEvent_lol-gameflow_v1_gameflow-phase"
	TopicSession       = "OnJsonApiEvent_lol-champ-select_v1_session"
	TopicLobby         = "OnJsonApiEvent_lol-lobby_v2_lobby"
)

var Topics = []string{TopicGameflowPhase, TopicSession, TopicLobby}

// WAMP 1.0 message codes used by the client.
const (
	opSubscribe = 5
	opEvent     = 8
)

// session payloads are well past the library's default read limit
const readLimit = 16 << 20

// EventHandler receives client events. monitor.Monitor satisfies it.
type EventHandler interface {
	OnPhase(phase string)
	OnSession(raw json.RawMessage)
	OnLobby(raw json.RawMessage)
	OnConnected()
	OnDisconnected(err error)
}

// Event is the payload of a WAMP event frame.
type Event struct {
	Topic     string          `json:"-"`
	URI       string          `json:"uri"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// DecodeEvent reads a `[8, topic, payload]` frame. ok is false for frames
// of any other kind.
func DecodeEvent(frame []byte) (ev Event, ok bool, err error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return Event{}, false, fmt.Errorf("decode frame: %w", err)
	}
	if len(parts) < 3 {
		return Event{}, false, nil
	}
	var op int
	if err := json.Unmarshal(parts[0], &op); err != nil || op != opEvent {
		return Event{}, false, nil
	}
	if err := json.Unmarshal(parts[1], &ev.Topic); err != nil {
		return Event{}, false, fmt.Errorf("decode topic: %w", err)
	}
	if err := json.Unmarshal(parts[2], &ev); err != nil {
		return Event{}, false, fmt.Errorf("decode %s payload: %w", ev.Topic, err)
	}
	return ev, true, nil
}

// Dispatch routes one event to h. Unknown topics are ignored.
func Dispatch(h EventHandler, ev Event) {
	switch ev.Topic {
	case TopicGameflowPhase:
		var phase string
		if err := json.Unmarshal(ev.Data, &phase); err != nil || phase == "" {
			return
		}
		h.OnPhase(phase)
	case TopicSession:
		if ev.EventType == "Delete" || len(ev.Data) == 0 {
			h.OnSession(json.RawMessage("null"))
			return
		}
		h.OnSession(ev.Data)
	case TopicLobby:
		if isNull(ev.Data) {
			return
		}
		h.OnLobby(ev.Data)
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// EventStream is a subscribed websocket to the client.
type EventStream struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

// DialEvents opens the client's websocket. hc must not carry a Timeout;
// ctx bounds the handshake.
func DialEvents(ctx context.Context, url, password string, hc *http.Client, logger *zap.Logger) (*EventStream, error) {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(username+":"+password)))

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:   hc,
		HTTPHeader:   header,
		Subprotocols: []string{"wamp"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)
	return &EventStream{conn: conn, logger: logger}, nil
}

func (s *EventStream) Subscribe(ctx context.Context, topics ...string) error {
	for _, topic := range topics {
		frame, _ := json.Marshal([]any{opSubscribe, topic})
		if err := s.conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Run reads frames until the socket fails or ctx ends. A clean close by the
// client is returned as nil.
func (s *EventStream) Run(ctx context.Context, h EventHandler) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}

		ev, ok, err := DecodeEvent(data)
		if err != nil {
			s.logger.Warn("bad event frame", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		Dispatch(h, ev)
	}
}

func (s *EventStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
