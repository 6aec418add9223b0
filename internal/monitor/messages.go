package monitor

import (
	"encoding/json"
	"time"
)

type Msg interface{ isMonitorMsg() }

type PhaseChanged struct {
	Phase string
}

func (PhaseChanged) isMonitorMsg() {}

// SessionUpdated carries a raw champ select session. Refetched marks
// snapshots pulled by the monitor itself rather than pushed by the client;
// Generation names the champ select they were pulled for.
type SessionUpdated struct {
	Raw        json.RawMessage
	Refetched  bool
	Generation uint64
}

func (SessionUpdated) isMonitorMsg() {}

type LobbyUpdated struct {
	Raw json.RawMessage
}

func (LobbyUpdated) isMonitorMsg() {}

type Connected struct{}

func (Connected) isMonitorMsg() {}

type Disconnected struct {
	Err error
}

func (Disconnected) isMonitorMsg() {}

type GetStatus struct {
	Reply chan Status
}

func (GetStatus) isMonitorMsg() {}

type Status struct {
	State           string    `json:"state"`
	Phase           string    `json:"phase"`
	LobbyID         string    `json:"lobbyId,omitempty"`
	LastHash        string    `json:"lastHash,omitempty"`
	Connected       bool      `json:"connected"`
	GameWentThrough bool      `json:"gameWentThrough"`
	Since           time.Time `json:"since"`
	Snapshots       int       `json:"snapshots"`
	Discarded       int       `json:"discarded"`
	Invalid         int       `json:"invalid"`
	Unchanged       int       `json:"unchanged"`
	Transmitted     int       `json:"transmitted"`
	Deletions       int       `json:"deletions"`
}
