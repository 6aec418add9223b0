package champion

import (
	"context"
	"strconv"

	"github.com/DoyleJ11/lcu-draft-client/internal/draft"
)

// Annotate returns a copy of d with champion keys replaced by names.
// Entries that do not resolve keep their key, and draft.EmptyBan is left
// alone, so annotation never empties a draft.
func (m *Mapper) Annotate(ctx context.Context, d draft.DraftData) draft.DraftData {
	out := d.Clone()
	for _, side := range []*draft.TeamData{&out.Blue, &out.Red} {
		side.Picks = m.names(ctx, side.Picks)
		side.Bans = m.names(ctx, side.Bans)
		for i := range side.PickEvents {
			side.PickEvents[i].ChampionID = m.name(ctx, side.PickEvents[i].ChampionID)
		}
		for i := range side.BanEvents {
			side.BanEvents[i].ChampionID = m.name(ctx, side.BanEvents[i].ChampionID)
		}
	}
	return out
}

func (m *Mapper) names(ctx context.Context, in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = m.name(ctx, v)
	}
	return out
}

func (m *Mapper) name(ctx context.Context, v string) string {
	if v == draft.EmptyBan {
		return v
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return v
	}
	if name, ok := m.Resolve(ctx, id); ok {
		return name
	}
	return v
}
