// Package extractor turns champion select snapshots into draft records.
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lcu-draft-client/internal/draft"
	"github.com/DoyleJ11/lcu-draft-client/pkg/types"
)

var ErrNoSession = errors.New("no champ select session")

// ExtractionError wraps a snapshot that could not be read.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("extract session: %v", e.Err) }

func (e *ExtractionError) Unwrap() error { return e.Err }

// Parse decodes a raw session payload. A JSON null is reported as
// ErrNoSession.
func Parse(raw []byte) (*types.ChampSelectSession, error) {
	var s *types.ChampSelectSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &ExtractionError{Err: err}
	}
	if s == nil {
		return nil, &ExtractionError{Err: ErrNoSession}
	}
	return s, nil
}

// Meta carries what the snapshot itself does not know.
type Meta struct {
	LobbyID     string
	WorkspaceID string
	IsNewGame   bool
}

type Option func(*Extractor)

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithEmptyBanPlaceholder records completed bans without a champion as
// draft.EmptyBan instead of dropping them.
func WithEmptyBanPlaceholder(on bool) Option {
	return func(e *Extractor) { e.emptyBans = on }
}

type Extractor struct {
	logger    *zap.Logger
	now       func() time.Time
	emptyBans bool
}

func New(logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds a DraftData from one snapshot. Bans come from the action
// log, picks from the team rosters. The result carries no hash yet.
func (e *Extractor) Extract(s *types.ChampSelectSession, meta Meta) (draft.DraftData, error) {
	if s == nil {
		return draft.DraftData{}, &ExtractionError{Err: ErrNoSession}
	}
	now := e.now().UTC()

	d := draft.DraftData{
		LobbyID:     meta.LobbyID,
		WorkspaceID: meta.WorkspaceID,
		Phase:       phaseOf(s),
		IsNewGame:   meta.IsNewGame,
		Blue:        draft.NewTeamData(),
		Red:         draft.NewTeamData(),
	}

	e.collectBans(&d, s, now)
	e.collectPicks(&d, s, now)
	return d, nil
}

func phaseOf(s *types.ChampSelectSession) string {
	if s.Timer == nil || strings.TrimSpace(s.Timer.Phase) == "" {
		return draft.UnknownPhase
	}
	return strings.ToUpper(strings.TrimSpace(s.Timer.Phase))
}

func (e *Extractor) collectBans(d *draft.DraftData, s *types.ChampSelectSession, now time.Time) {
	bans := lo.Filter(lo.Flatten(s.Actions), func(a types.Action, _ int) bool {
		return a.Type == types.ActionTypeBan && a.Completed
	})

	for _, a := range bans {
		side := d.Side(draft.TeamRed)
		if a.IsAllyAction {
			side = d.Side(draft.TeamBlue)
		}

		var champ string
		switch {
		case a.ChampionID > 0:
			champ = a.ChampionID.String()
			if side.HasBan(champ) {
				continue
			}
		case e.emptyBans:
			champ = draft.EmptyBan
		default:
			continue
		}

		side.Bans = append(side.Bans, champ)
		side.BanEvents = append(side.BanEvents, draft.ChampionEvent{
			ChampionID: champ,
			Order:      len(side.BanEvents) + 1,
			Timestamp:  now,
		})
	}
}

func (e *Extractor) collectPicks(d *draft.DraftData, s *types.ChampSelectSession, now time.Time) {
	players := append(append([]types.Player{}, s.MyTeam...), s.TheirTeam...)

	for _, p := range players {
		if p.ChampionID <= 0 {
			continue
		}

		var side *draft.TeamData
		switch p.Team {
		case types.RosterBlue:
			side = d.Side(draft.TeamBlue)
		case types.RosterRed:
			side = d.Side(draft.TeamRed)
		default:
			e.logger.Warn("skipping pick with unknown team",
				zap.Int64("championId", int64(p.ChampionID)),
				zap.Int64("team", int64(p.Team)),
				zap.Int64("cellId", int64(p.CellID)))
			continue
		}

		champ := p.ChampionID.String()
		if side.HasPick(champ) {
			continue
		}
		side.Picks = append(side.Picks, champ)
		side.PickEvents = append(side.PickEvents, draft.ChampionEvent{
			ChampionID: champ,
			Order:      len(side.Picks),
			Timestamp:  now,
		})
	}
}
