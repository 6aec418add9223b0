package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{`266`, 266, false},
		{`"103"`, 103, false},
		{`" 7 "`, 7, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"Annie"`, 0, true},
		{`1.5`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tc.in), &id)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, id)
		})
	}
}

func TestChampSelectSession_Processable(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"empty object", `{}`, false},
		{"empty action groups", `{"actions":[[],[]]}`, false},
		{"actions", `{"actions":[[{"type":"ban","championId":1}]]}`, true},
		{"timer phase only", `{"timer":{"phase":"PLANNING"}}`, true},
		{"timer without phase", `{"timer":{"isInfinite":true}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s ChampSelectSession
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &s))
			assert.Equal(t, tc.want, s.Processable())
		})
	}

	var nilSession *ChampSelectSession
	assert.False(t, nilSession.Processable())
}

func TestChampSelectSession_LobbyID(t *testing.T) {
	cases := []struct {
		name string
		s    *ChampSelectSession
		want string
	}{
		{"nil", nil, ""},
		{"game id", &ChampSelectSession{GameID: 7012345678, ChatDetails: &ChatDetails{ChatRoomName: "room"}}, "7012345678"},
		{"multi user chat", &ChampSelectSession{ChatDetails: &ChatDetails{MultiUserChatID: "muc", ChatRoomName: "room"}}, "muc"},
		{"chat room", &ChampSelectSession{ChatDetails: &ChatDetails{ChatRoomName: "room"}}, "room"},
		{"nothing", &ChampSelectSession{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.s.LobbyID())
		})
	}
}

func TestLobby_LobbyID(t *testing.T) {
	var l Lobby
	require.NoError(t, json.Unmarshal([]byte(`{"gameId":"42","partyId":"p"}`), &l))
	assert.Equal(t, "42", l.LobbyID())
	assert.Equal(t, "", (&Lobby{PartyID: "p"}).LobbyID())
}

func TestDeletionPayload_InlinesEnvelope(t *testing.T) {
	b, err := json.Marshal(DeletionPayload{
		Action:      ActionDelete,
		LobbyID:     "1",
		WorkspaceID: "ws",
		Envelope:    Envelope{Timestamp: "2025-01-01T00:00:00Z", ClientVersion: "1.0.0"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"action":"delete","lobbyId":"1","workspaceId":"ws","_timestamp":"2025-01-01T00:00:00Z","_client_version":"1.0.0"}`,
		string(b))
}
