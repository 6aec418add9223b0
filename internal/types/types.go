package types

import (
	"github.com/DoyleJ11/lcu-draft-client/internal/monitor"
	"github.com/DoyleJ11/lcu-draft-client/internal/notify"
	"github.com/DoyleJ11/lcu-draft-client/internal/transmit"
)

// Status is what /status and the status stream report.
type Status struct {
	Version         string         `json:"version"`
	ChampionVersion string         `json:"championVersion,omitempty"`
	Monitor         monitor.Status `json:"monitor"`
	Transmitter     transmit.Stats `json:"transmitter"`
}

type ClientMessage struct {
	Type string `json:"type"` // "GetStatus"
}

type ServerMessage struct {
	Type         string               `json:"type"` // "Notification" | "Status" | "Error"
	Notification *notify.Notification `json:"notification,omitempty"`
	Status       *Status              `json:"status,omitempty"`
	Error        string               `json:"error,omitempty"`
}
