package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/songline-backend/internal/engine"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{"create without mode", `{"type":"CreateRoom"}`, false},
		{"join", `{"type":"JoinRoom","roomKey":"abc123","name":"Ann"}`, false},
		{"join without name", `{"type":"JoinRoom","roomKey":"abc123"}`, true},
		{"place at slot zero", `{"type":"PlaceCard","playerId":"p1","slotIndex":0}`, false},
		{"place without slot", `{"type":"PlaceCard","playerId":"p1"}`, true},
		{"challenge", `{"type":"Challenge","challengerId":"a","targetId":"b","slotIndex":1}`, false},
		{"reveal without year", `{"type":"Reveal"}`, true},
		{"rejoin by key", `{"type":"RejoinHost","roomKey":"ABC123"}`, false},
		{"unknown type", `{"type":"Dance"}`, true},
		{"not json", `{`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncode_RejectsInvalid(t *testing.T) {
	_, err := Encode(ServerMessage{Type: MsgRoomState, RoomKey: "ABC123"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Encode(Error("", "no code"))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Encode(ServerMessage{Type: "Gossip"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestRoomState_IncludesRevealedTimelines(t *testing.T) {
	s := engine.NewGame(engine.ModeOriginal)
	s, err := engine.Join(s, engine.Player{ID: "p1", Name: "Ann"})
	require.NoError(t, err)
	s, err = engine.StartRound(s, engine.Card{TrackURI: "spotify:track:1"}, "")
	require.NoError(t, err)
	s, err = engine.PlaceCard(s, "p1", 0)
	require.NoError(t, err)

	roster := []RosterEntry{{PlayerID: "p1", Name: "Ann", Connected: true}}
	data, err := Encode(RoomState("ABC123", 4, roster, s))
	require.NoError(t, err)

	var got ServerMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, MsgRoomState, got.Type)
	assert.Equal(t, 4, got.Version)
	assert.Empty(t, got.Timelines["p1"], "unrevealed placements are not on the timeline")
	require.NotNil(t, got.Game)
	assert.Nil(t, got.Game.Rounds[0].CurrentCard.Year)

	s, err = engine.RevealYear(s, 1999)
	require.NoError(t, err)
	data, err = Encode(RoomState("ABC123", 5, roster, s))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Timelines["p1"], 1)
	assert.Equal(t, 1999, *got.Timelines["p1"][0].Year)
}
