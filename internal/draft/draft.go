package draft

import (
	"time"
)

type Team string

const (
	TeamBlue Team = "blue"
	TeamRed  Team = "red"
)

// EmptyBan marks a ban slot that was completed without a champion.
const EmptyBan = "None"

// UnknownPhase is used when a snapshot carries no timer phase.
const UnknownPhase = "UNKNOWN"

// ChampionEvent is one committed pick or ban. Order starts at 1.
type ChampionEvent struct {
	ChampionID string
	Order      int
	Timestamp  time.Time
}

type TeamData struct {
	Picks      []string
	Bans       []string
	PickEvents []ChampionEvent
	BanEvents  []ChampionEvent
}

// DraftData is one consistent view of a lobby's champion select.
// Values are replaced on every snapshot, never mutated after hashing.
type DraftData struct {
	LobbyID     string
	WorkspaceID string
	Phase       string
	IsNewGame   bool
	Blue        TeamData
	Red         TeamData
	DataHash    string
}

func NewTeamData() TeamData {
	return TeamData{
		Picks:      []string{},
		Bans:       []string{},
		PickEvents: []ChampionEvent{},
		BanEvents:  []ChampionEvent{},
	}
}

func (d *DraftData) Side(t Team) *TeamData {
	switch t {
	case TeamBlue:
		return &d.Blue
	case TeamRed:
		return &d.Red
	default:
		return nil
	}
}

func (d DraftData) PickCount() int { return len(d.Blue.Picks) + len(d.Red.Picks) }

func (d DraftData) BanCount() int { return len(d.Blue.Bans) + len(d.Red.Bans) }

// IsGhost reports a draft without a single pick or ban.
func (d DraftData) IsGhost() bool { return d.PickCount() == 0 && d.BanCount() == 0 }

// Clone returns a deep copy so callers can rewrite lists without touching d.
func (d DraftData) Clone() DraftData {
	out := d
	out.Blue = d.Blue.clone()
	out.Red = d.Red.clone()
	return out
}

func (t TeamData) clone() TeamData {
	return TeamData{
		Picks:      append([]string{}, t.Picks...),
		Bans:       append([]string{}, t.Bans...),
		PickEvents: append([]ChampionEvent{}, t.PickEvents...),
		BanEvents:  append([]ChampionEvent{}, t.BanEvents...),
	}
}

// HasPick and HasBan mirror the lookups the extractor uses for dedupe.
func (t TeamData) HasPick(championID string) bool { return contains(t.Picks, championID) }

func (t TeamData) HasBan(championID string) bool { return contains(t.Bans, championID) }

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
