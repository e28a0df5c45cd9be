package engine

import (
	"errors"
)

var ErrAlreadyInGame = errors.New("player already in game")
var ErrGameAlreadyStarted = errors.New("game already started")
var ErrPlayerNotFound = errors.New("player not found")
var ErrGameFinished = errors.New("game finished")
var ErrNoPlayers = errors.New("no players")
var ErrNoActiveRound = errors.New("no active round")
var ErrNotPlaying = errors.New("game is not in playing status")
var ErrInvalidSlot = errors.New("invalid slot")
var ErrAlreadyPlaced = errors.New("player already placed this round")
var ErrSelfChallenge = errors.New("cannot challenge own placement")
var ErrInsufficientTokens = errors.New("insufficient tokens")
var ErrPlacementNotFound = errors.New("placement not found")
var ErrAlreadyRevealed = errors.New("round already revealed")
var ErrNoTokens = errors.New("no tokens left")
var ErrCardAlreadyPlaced = errors.New("card already placed this round")
var ErrNotYourTurn = errors.New("not your turn")
var ErrUnsupportedCommand = errors.New("unsupported command")

type PlayerID string

type Status string

const (
	StatusLobby        Status = "lobby"
	StatusPlaying      Status = "playing"
	StatusRoundSummary Status = "round_summary"
	StatusFinished     Status = "finished"
)

type Player struct {
	ID     PlayerID `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar"`
	Tokens int      `json:"tokens"`
	Score  int      `json:"score"`
}

type Card struct {
	TrackURI string `json:"trackUri"`
	Year     *int   `json:"year,omitempty"`
	Revealed bool   `json:"revealed"`
}

type TimelineEntry struct {
	Card             Card     `json:"card"`
	PlayerID         PlayerID `json:"playerId"`
	SlotIndex        int      `json:"slotIndex"`
	Year             *int     `json:"year,omitempty"`
	PlacementCorrect *bool    `json:"placementCorrect,omitempty"`
}

type Challenge struct {
	ChallengerID PlayerID `json:"challengerId"`
	TargetID     PlayerID `json:"targetId"`
	SlotIndex    int      `json:"slotIndex"`
}

type Round struct {
	RoundNumber     int             `json:"roundNumber"`
	CurrentCard     Card            `json:"currentCard"`
	CurrentPlayerID PlayerID        `json:"currentPlayerId,omitempty"`
	TurnSeat        int             `json:"turnSeat"`
	Placements      []TimelineEntry `json:"placements"`
	Challenges      []Challenge     `json:"challenges,omitempty"`
	Revealed        bool            `json:"revealed"`
	ActualYear      *int            `json:"actualYear,omitempty"`
	Scored          bool            `json:"scored"`
}

type State struct {
	Mode           Mode      `json:"mode"`
	Status         Status    `json:"status"`
	Players        []Player  `json:"players"`
	CurrentRound   int       `json:"currentRound"`
	Rounds         []Round   `json:"rounds"`
	Winner         *PlayerID `json:"winner,omitempty"`
	StartingTokens int       `json:"startingTokens"`
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdRemovePlayer CommandType = "RemovePlayer"
	CmdStartRound   CommandType = "StartRound"
	CmdPlaceCard    CommandType = "PlaceCard"
	CmdChallenge    CommandType = "Challenge"
	CmdReveal       CommandType = "Reveal"
	CmdSkipCard     CommandType = "SkipCard"
	CmdAwardToken   CommandType = "AwardToken"
)

/*
	CmdJoin         -> EvtPlayerJoined
	CmdRemovePlayer -> EvtPlayerRemoved
	CmdStartRound   -> EvtRoundStarted
	CmdPlaceCard    -> EvtCardPlaced
	CmdChallenge    -> EvtTokenSpent -> EvtPlacementChallenged
	CmdReveal       -> EvtYearRevealed -> EvtScoresUpdated -> EvtGameCompleted (only when someone won)
	CmdSkipCard     -> EvtTokenSpent -> EvtRoundStarted (same round number, new card)
	CmdAwardToken   -> EvtTokenAwarded
*/

type Command struct {
	Type      CommandType
	Player    Player   // CmdJoin
	PlayerID  PlayerID // actor, or requested turn owner for CmdStartRound
	TargetID  PlayerID // CmdChallenge
	SlotIndex int
	Card      Card // CmdStartRound, CmdSkipCard
	Year      int  // CmdReveal
}

type EventType string

const (
	EvtPlayerJoined        EventType = "PlayerJoined"
	EvtPlayerRemoved       EventType = "PlayerRemoved"
	EvtRoundStarted        EventType = "RoundStarted"
	EvtCardPlaced          EventType = "CardPlaced"
	EvtPlacementChallenged EventType = "PlacementChallenged"
	EvtTokenSpent          EventType = "TokenSpent"
	EvtTokenAwarded        EventType = "TokenAwarded"
	EvtYearRevealed        EventType = "YearRevealed"
	EvtScoresUpdated       EventType = "ScoresUpdated"
	EvtGameCompleted       EventType = "GameCompleted"
)

type Event struct {
	Type      EventType
	PlayerID  PlayerID
	TargetID  PlayerID
	SlotIndex int
	Year      int
	Round     int
}

// Apply routes a command to the matching state transition and reports what happened.
// On error the input state is returned untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		next, err := Join(s, cmd.Player)
		if err != nil {
			return nil, s, err
		}
		return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.Player.ID}}, next, nil

	case CmdRemovePlayer:
		next, err := RemovePlayer(s, cmd.PlayerID)
		if err != nil {
			return nil, s, err
		}
		return []Event{{Type: EvtPlayerRemoved, PlayerID: cmd.PlayerID}}, next, nil

	case CmdStartRound:
		next, err := StartRound(s, cmd.Card, cmd.PlayerID)
		if err != nil {
			return nil, s, err
		}
		r := next.Rounds[next.CurrentRound]
		return []Event{{Type: EvtRoundStarted, PlayerID: r.CurrentPlayerID, Round: r.RoundNumber}}, next, nil

	case CmdPlaceCard:
		next, err := PlaceCard(s, cmd.PlayerID, cmd.SlotIndex)
		if err != nil {
			return nil, s, err
		}
		return []Event{{Type: EvtCardPlaced, PlayerID: cmd.PlayerID, SlotIndex: cmd.SlotIndex}}, next, nil

	case CmdChallenge:
		next, err := ChallengePlacement(s, cmd.PlayerID, cmd.TargetID, cmd.SlotIndex)
		if err != nil {
			return nil, s, err
		}
		events := []Event{
			{Type: EvtTokenSpent, PlayerID: cmd.PlayerID},
			{Type: EvtPlacementChallenged, PlayerID: cmd.PlayerID, TargetID: cmd.TargetID, SlotIndex: cmd.SlotIndex},
		}
		return events, next, nil

	case CmdReveal:
		next, err := RevealYear(s, cmd.Year)
		if err != nil {
			return nil, s, err
		}
		events := []Event{
			{Type: EvtYearRevealed, Year: cmd.Year, Round: next.Rounds[next.CurrentRound].RoundNumber},
			{Type: EvtScoresUpdated},
		}
		if next.Winner != nil {
			events = append(events, Event{Type: EvtGameCompleted, PlayerID: *next.Winner})
		}
		return events, next, nil

	case CmdSkipCard:
		next, err := SkipCard(s, cmd.PlayerID, cmd.Card)
		if err != nil {
			return nil, s, err
		}
		r := next.Rounds[next.CurrentRound]
		events := []Event{
			{Type: EvtTokenSpent, PlayerID: cmd.PlayerID},
			{Type: EvtRoundStarted, PlayerID: r.CurrentPlayerID, Round: r.RoundNumber},
		}
		return events, next, nil

	case CmdAwardToken:
		next, err := AwardToken(s, cmd.PlayerID)
		if err != nil {
			return nil, s, err
		}
		return []Event{{Type: EvtTokenAwarded, PlayerID: cmd.PlayerID}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}
