package draft

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyLobbyID = errors.New("lobby id is empty")
var ErrUnknownLobbyID = errors.New("lobby id is UNKNOWN")
var ErrEmptyWorkspaceID = errors.New("workspace id is empty")
var ErrGhostDraft = errors.New("draft has no picks or bans")

// ValidationError reports a draft that must not leave the process.
type ValidationError struct {
	LobbyID string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid draft for lobby %q: %v", e.LobbyID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (d DraftData) Validate() error {
	lobby := strings.TrimSpace(d.LobbyID)
	switch {
	case lobby == "":
		return &ValidationError{LobbyID: d.LobbyID, Err: ErrEmptyLobbyID}
	case strings.EqualFold(lobby, "UNKNOWN"):
		return &ValidationError{LobbyID: d.LobbyID, Err: ErrUnknownLobbyID}
	case strings.TrimSpace(d.WorkspaceID) == "":
		return &ValidationError{LobbyID: d.LobbyID, Err: ErrEmptyWorkspaceID}
	case d.IsGhost():
		return &ValidationError{LobbyID: d.LobbyID, Err: ErrGhostDraft}
	}
	return nil
}
