// Package notify fans out client status events to any number of listeners.
package notify

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Type string

const (
	ChampSelectStarted   Type = "champ_select_started"
	ChampSelectCancelled Type = "champ_select_cancelled"
	GameStarted          Type = "game_started"
	GameEnded            Type = "game_ended"
	DraftSaved           Type = "draft_saved"
	DraftDeleted         Type = "draft_deleted"
	ConnectionLost       Type = "connection_lost"
	ConnectionRestored   Type = "connection_restored"
	StateChanged         Type = "state_changed"
)

// Cancellation reasons.
const (
	ReasonDodge     = "dodge"
	ReasonCancelled = "cancelled"
)

type Notification struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	LobbyID string    `json:"lobbyId,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Picks   int       `json:"picks,omitempty"`
	Bans    int       `json:"bans,omitempty"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(n Notification)
}

func (t Type) level() zapcore.Level {
	switch t {
	case ChampSelectCancelled, ConnectionLost:
		return zapcore.WarnLevel
	case ChampSelectStarted, GameStarted, DraftDeleted:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (n Notification) fields() []zap.Field {
	fields := []zap.Field{zap.String("type", string(n.Type))}
	if n.LobbyID != "" {
		fields = append(fields, zap.String("lobbyId", n.LobbyID))
	}
	if n.Reason != "" {
		fields = append(fields, zap.String("reason", n.Reason))
	}
	if n.Type == DraftSaved {
		fields = append(fields, zap.Int("picks", n.Picks), zap.Int("bans", n.Bans))
	}
	if n.From != "" || n.To != "" {
		fields = append(fields, zap.String("from", n.From), zap.String("to", n.To))
	}
	if n.Message != "" {
		fields = append(fields, zap.String("message", n.Message))
	}
	return fields
}
