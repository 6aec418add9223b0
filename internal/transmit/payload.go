package transmit

import (
	"time"

	"github.com/DoyleJ11/lcu-draft-client/internal/draft"
	"github.com/DoyleJ11/lcu-draft-client/pkg/types"
)

func draftPayload(d draft.DraftData, env types.Envelope) types.DraftPayload {
	hash := d.DataHash
	if hash == "" {
		hash = d.Hash()
	}
	return types.DraftPayload{
		LobbyID:     d.LobbyID,
		WorkspaceID: d.WorkspaceID,
		Phase:       d.Phase,
		IsNewGame:   d.IsNewGame,
		BlueSide:    sidePayload(d.Blue),
		RedSide:     sidePayload(d.Red),
		DataHash:    hash,
		Envelope:    env,
	}
}

func sidePayload(t draft.TeamData) types.Side {
	return types.Side{
		Picks:      orEmpty(t.Picks),
		Bans:       orEmpty(t.Bans),
		PickEvents: events(t.PickEvents),
		BanEvents:  events(t.BanEvents),
	}
}

func events(in []draft.ChampionEvent) []types.ChampionEvent {
	out := make([]types.ChampionEvent, 0, len(in))
	for _, e := range in {
		out = append(out, types.ChampionEvent{
			ChampionID: e.ChampionID,
			Order:      e.Order,
			Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
