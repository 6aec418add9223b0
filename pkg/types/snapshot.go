// Package types holds the wire shapes exchanged with the League client and
// with the draft ingestion endpoint.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a numeric identifier the client sometimes encodes as a string.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q: %w", s, err)
		}
		*id = ID(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("id %s: %w", n, err)
	}
	*id = ID(v)
	return nil
}

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

const (
	ActionTypeBan  = "ban"
	ActionTypePick = "pick"
)

// Roster team values.
const (
	RosterBlue ID = 1
	RosterRed  ID = 2
)

// ChampSelectSession is /lol-champ-select/v1/session, reduced to what the
// draft tracker reads.
type ChampSelectSession struct {
	GameID            ID           `json:"gameId"`
	LocalPlayerCellID ID           `json:"localPlayerCellId"`
	Actions           [][]Action   `json:"actions"`
	MyTeam            []Player     `json:"myTeam"`
	TheirTeam         []Player     `json:"theirTeam"`
	Timer             *Timer       `json:"timer,omitempty"`
	ChatDetails       *ChatDetails `json:"chatDetails,omitempty"`
}

type Action struct {
	ID           ID     `json:"id"`
	ActorCellID  ID     `json:"actorCellId"`
	ChampionID   ID     `json:"championId"`
	Type         string `json:"type"`
	Completed    bool   `json:"completed"`
	IsAllyAction bool   `json:"isAllyAction"`
	IsInProgress bool   `json:"isInProgress"`
	PickTurn     int    `json:"pickTurn"`
}

type Player struct {
	CellID           ID     `json:"cellId"`
	ChampionID       ID     `json:"championId"`
	Team             ID     `json:"team"`
	AssignedPosition string `json:"assignedPosition,omitempty"`
}

type Timer struct {
	Phase                   string `json:"phase"`
	AdjustedTimeLeftInPhase int64  `json:"adjustedTimeLeftInPhase"`
	TotalTimeInPhase        int64  `json:"totalTimeInPhase"`
	IsInfinite              bool   `json:"isInfinite"`
}

type ChatDetails struct {
	MultiUserChatID string `json:"multiUserChatId,omitempty"`
	ChatRoomName    string `json:"chatRoomName,omitempty"`
}

// Processable reports whether the snapshot carries any draft signal. The
// client pushes empty sessions around phase changes.
func (s *ChampSelectSession) Processable() bool {
	if s == nil {
		return false
	}
	for _, group := range s.Actions {
		if len(group) > 0 {
			return true
		}
	}
	return s.Timer != nil && s.Timer.Phase != ""
}

// LobbyID derives a lobby identifier from the session: the game id when the
// client has assigned one, otherwise the champ select chat room.
func (s *ChampSelectSession) LobbyID() string {
	if s == nil {
		return ""
	}
	if s.GameID > 0 {
		return s.GameID.String()
	}
	if s.ChatDetails != nil {
		if s.ChatDetails.MultiUserChatID != "" {
			return s.ChatDetails.MultiUserChatID
		}
		return s.ChatDetails.ChatRoomName
	}
	return ""
}

// Lobby is the part of the lobby endpoint used for lobby discovery.
type Lobby struct {
	GameID  ID     `json:"gameId"`
	PartyID string `json:"partyId,omitempty"`
}

func (l *Lobby) LobbyID() string {
	if l == nil || l.GameID <= 0 {
		return ""
	}
	return l.GameID.String()
}
