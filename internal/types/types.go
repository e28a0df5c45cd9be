package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/songline-backend/internal/engine"
)

var ErrInvalidMessage = errors.New("invalid message")

// Inbound kinds.
const (
	MsgCreateRoom = "CreateRoom"
	MsgJoinRoom   = "JoinRoom"
	MsgLeave      = "Leave"
	MsgStartRound = "StartRound"
	MsgPlaceCard  = "PlaceCard"
	MsgChallenge  = "Challenge"
	MsgReveal     = "Reveal"
	MsgSkipCard   = "SkipCard"
	MsgAwardToken = "AwardToken"
	MsgRejoinHost = "RejoinHost"
	MsgCloseRoom  = "CloseRoom"
)

// Outbound kinds.
const (
	MsgRoomCreated = "RoomCreated"
	MsgJoined      = "Joined"
	MsgRoomState   = "RoomState"
	MsgError       = "Error"
	MsgRoomClosed  = "RoomClosed"
)

type ClientMessage struct {
	Type         string `json:"type"`
	Mode         string `json:"mode,omitempty"`
	RoomKey      string `json:"roomKey,omitempty"`
	RoomID       string `json:"roomId,omitempty"`
	Name         string `json:"name,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	PlayerID     string `json:"playerId,omitempty"`
	ChallengerID string `json:"challengerId,omitempty"`
	TargetID     string `json:"targetId,omitempty"`
	SlotIndex    *int   `json:"slotIndex,omitempty"`
	TrackURI     string `json:"trackUri,omitempty"`
	Year         *int   `json:"year,omitempty"`
}

type RosterEntry struct {
	PlayerID  engine.PlayerID `json:"playerId"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	Connected bool            `json:"connected"`
}

type ServerMessage struct {
	Type      string                                     `json:"type"`
	RoomKey   string                                     `json:"roomKey,omitempty"`
	RoomID    string                                     `json:"roomId,omitempty"`
	PlayerID  engine.PlayerID                            `json:"playerId,omitempty"`
	Version   int                                        `json:"version,omitempty"`
	Roster    []RosterEntry                              `json:"roster,omitempty"`
	Game      *engine.State                              `json:"game,omitempty"`
	Timelines map[engine.PlayerID][]engine.TimelineEntry `json:"timelines,omitempty"`
	Code      string                                     `json:"code,omitempty"`
	Message   string                                     `json:"message,omitempty"`
	Reason    string                                     `json:"reason,omitempty"`
}

// Decode parses one inbound frame and checks it carries what its kind needs.
func Decode(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return ClientMessage{}, err
	}
	return m, nil
}

func (m ClientMessage) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s requires %s", ErrInvalidMessage, m.Type, field)
	}
	switch m.Type {
	case MsgCreateRoom, MsgLeave, MsgCloseRoom:
		return nil
	case MsgJoinRoom:
		if m.RoomKey == "" {
			return missing("roomKey")
		}
		if m.Name == "" {
			return missing("name")
		}
	case MsgStartRound:
		if m.TrackURI == "" {
			return missing("trackUri")
		}
	case MsgPlaceCard:
		if m.PlayerID == "" {
			return missing("playerId")
		}
		if m.SlotIndex == nil {
			return missing("slotIndex")
		}
	case MsgChallenge:
		if m.ChallengerID == "" || m.TargetID == "" {
			return missing("challengerId and targetId")
		}
		if m.SlotIndex == nil {
			return missing("slotIndex")
		}
	case MsgReveal:
		if m.Year == nil {
			return missing("year")
		}
	case MsgSkipCard:
		if m.PlayerID == "" {
			return missing("playerId")
		}
		if m.TrackURI == "" {
			return missing("trackUri")
		}
	case MsgAwardToken:
		if m.PlayerID == "" {
			return missing("playerId")
		}
	case MsgRejoinHost:
		if m.RoomID == "" && m.RoomKey == "" {
			return missing("roomId or roomKey")
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

func (m ServerMessage) Validate() error {
	bad := func(why string) error {
		return fmt.Errorf("%w: %s %s", ErrInvalidMessage, m.Type, why)
	}
	switch m.Type {
	case MsgRoomCreated:
		if m.RoomKey == "" || m.RoomID == "" {
			return bad("needs roomKey and roomId")
		}
	case MsgJoined:
		if m.PlayerID == "" || m.RoomKey == "" {
			return bad("needs playerId and roomKey")
		}
	case MsgRoomState:
		if m.RoomKey == "" || m.Game == nil {
			return bad("needs roomKey and game")
		}
		for _, r := range m.Roster {
			if r.PlayerID == "" {
				return bad("has a roster entry without playerId")
			}
		}
	case MsgError:
		if m.Code == "" {
			return bad("needs code")
		}
	case MsgRoomClosed:
		if m.RoomKey == "" {
			return bad("needs roomKey")
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

// Encode validates and serializes an outbound message. Nothing is returned for an invalid one.
func Encode(m ServerMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func RoomCreated(roomKey, roomID string) ServerMessage {
	return ServerMessage{Type: MsgRoomCreated, RoomKey: roomKey, RoomID: roomID}
}

func Joined(playerID engine.PlayerID, roomKey string, roster []RosterEntry) ServerMessage {
	return ServerMessage{Type: MsgJoined, PlayerID: playerID, RoomKey: roomKey, Roster: roster}
}

// RoomState carries the whole game plus every player's revealed timeline.
func RoomState(roomKey string, version int, roster []RosterEntry, game engine.State) ServerMessage {
	timelines := make(map[engine.PlayerID][]engine.TimelineEntry, len(game.Players))
	for _, p := range game.Players {
		timelines[p.ID] = engine.PlayerTimeline(game, p.ID)
	}
	return ServerMessage{
		Type:      MsgRoomState,
		RoomKey:   roomKey,
		Version:   version,
		Roster:    roster,
		Game:      &game,
		Timelines: timelines,
	}
}

func Error(code, message string) ServerMessage {
	return ServerMessage{Type: MsgError, Code: code, Message: message}
}

func RoomClosed(roomKey, reason string) ServerMessage {
	return ServerMessage{Type: MsgRoomClosed, RoomKey: roomKey, Reason: reason}
}
