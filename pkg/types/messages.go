package types

// Requests accepted by the draft ingestion endpoint. Every request carries
// an Envelope.

const ActionDelete = "delete"

type Envelope struct {
	Timestamp     string `json:"_timestamp"`
	ClientVersion string `json:"_client_version"`
	PasswordHash  string `json:"_passwordHash,omitempty"`
}

type ChampionEvent struct {
	ChampionID string `json:"championId"`
	Order      int    `json:"order"`
	Timestamp  string `json:"timestamp"`
}

type Side struct {
	Picks      []string        `json:"picks"`
	Bans       []string        `json:"bans"`
	PickEvents []ChampionEvent `json:"pick_events"`
	BanEvents  []ChampionEvent `json:"ban_events"`
}

type DraftPayload struct {
	LobbyID     string `json:"lobbyId"`
	WorkspaceID string `json:"workspaceId"`
	Phase       string `json:"phase"`
	IsNewGame   bool   `json:"isNewGame"`
	BlueSide    Side   `json:"blue_side"`
	RedSide     Side   `json:"red_side"`
	DataHash    string `json:"dataHash"`
	Envelope
}

type DeletionPayload struct {
	Action      string `json:"action"`
	LobbyID     string `json:"lobbyId"`
	WorkspaceID string `json:"workspaceId"`
	Envelope
}

// SinkResponse is the body of a 200 answer.
type SinkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
