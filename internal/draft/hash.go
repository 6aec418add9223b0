package draft

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
)

// hashInput lists its fields alphabetically so the encoding is canonical.
type hashInput struct {
	BlueBans  []string `json:"blueBans"`
	BluePicks []string `json:"bluePicks"`
	LobbyID   string   `json:"lobbyId"`
	Phase     string   `json:"phase"`
	RedBans   []string `json:"redBans"`
	RedPicks  []string `json:"redPicks"`
}

// Hash digests lobby id, phase and the four pick/ban sets. List order and
// event timestamps do not influence the result.
func (d DraftData) Hash() string {
	in := hashInput{
		BlueBans:  sortedCopy(d.Blue.Bans),
		BluePicks: sortedCopy(d.Blue.Picks),
		LobbyID:   d.LobbyID,
		Phase:     d.Phase,
		RedBans:   sortedCopy(d.Red.Bans),
		RedPicks:  sortedCopy(d.Red.Picks),
	}
	b, err := json.Marshal(in)
	if err != nil {
		// only strings and string slices, cannot fail
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// WithHash returns a copy of d carrying its current digest.
func (d DraftData) WithHash() DraftData {
	d.DataHash = d.Hash()
	return d
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	slices.Sort(out)
	return out
}
