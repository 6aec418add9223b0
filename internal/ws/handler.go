package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lcu-draft-client/internal/notify"
	"github.com/DoyleJ11/lcu-draft-client/internal/types"
)

const writeTimeout = 3 * time.Second

// Feed hands out notification subscriptions. notify.Bus satisfies it.
type Feed interface {
	Subscribe() <-chan notify.Notification
	Unsubscribe(ch <-chan notify.Notification)
}

type StatusSource interface {
	Status(ctx context.Context) (types.Status, error)
}

// Handler streams notifications to a local dashboard. The first message is
// the current status; a client may ask for it again with GetStatus.
func Handler(feed Feed, status StatusSource, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		sub := feed.Subscribe()
		defer feed.Unsubscribe(sub)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		write := func(msg types.ServerMessage) error {
			payload, _ := json.Marshal(msg)
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			defer wcancel()
			return conn.Write(wctx, websocket.MessageText, payload)
		}

		if err := write(statusMessage(ctx, status)); err != nil {
			return
		}

		// Writer goroutine
		go func() {
			defer cancel()
			for n := range sub {
				if err := write(types.ServerMessage{Type: "Notification", Notification: &n}); err != nil {
					logger.Debug("status stream write failed", zap.Error(err))
					return
				}
			}
			conn.Close(websocket.StatusGoingAway, "shutting down")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			switch cm.Type {
			case "GetStatus":
				_ = write(statusMessage(ctx, status))
			default:
				_ = write(types.ServerMessage{Type: "Error", Error: "unknown type"})
			}
		}
	}
}

func statusMessage(ctx context.Context, src StatusSource) types.ServerMessage {
	s, err := src.Status(ctx)
	if err != nil {
		return types.ServerMessage{Type: "Error", Error: err.Error()}
	}
	return types.ServerMessage{Type: "Status", Status: &s}
}
