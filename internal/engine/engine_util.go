package engine

import "errors"

func NewGame(mode Mode) State {
	return State{
		Mode:           mode,
		Status:         StatusLobby,
		Players:        []Player{},
		CurrentRound:   0,
		Rounds:         []Round{},
		StartingTokens: RulesFor(mode).StartingTokens,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

type Code string

const (
	CodeAlreadyInGame      Code = "ALREADY_IN_GAME"
	CodeGameAlreadyStarted Code = "GAME_ALREADY_STARTED"
	CodePlayerNotFound     Code = "PLAYER_NOT_FOUND"
	CodeGameFinished       Code = "GAME_FINISHED"
	CodeNoPlayers          Code = "NO_PLAYERS"
	CodeNoActiveRound      Code = "NO_ACTIVE_ROUND"
	CodeNotPlaying         Code = "NOT_PLAYING"
	CodeInvalidSlot        Code = "INVALID_SLOT"
	CodeAlreadyPlaced      Code = "ALREADY_PLACED"
	CodeSelfChallenge      Code = "SELF_CHALLENGE"
	CodeInsufficientTokens Code = "INSUFFICIENT_TOKENS"
	CodePlacementNotFound  Code = "PLACEMENT_NOT_FOUND"
	CodeAlreadyRevealed    Code = "ALREADY_REVEALED"
	CodeNoTokens           Code = "NO_TOKENS"
	CodeCardAlreadyPlaced  Code = "CARD_ALREADY_PLACED"
	CodeNotYourTurn        Code = "NOT_YOUR_TURN"
	CodeUnsupported        Code = "UNSUPPORTED_COMMAND"
	CodeUnknown            Code = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code Code
}{
	{ErrAlreadyInGame, CodeAlreadyInGame},
	{ErrGameAlreadyStarted, CodeGameAlreadyStarted},
	{ErrPlayerNotFound, CodePlayerNotFound},
	{ErrGameFinished, CodeGameFinished},
	{ErrNoPlayers, CodeNoPlayers},
	{ErrNoActiveRound, CodeNoActiveRound},
	{ErrNotPlaying, CodeNotPlaying},
	{ErrInvalidSlot, CodeInvalidSlot},
	{ErrAlreadyPlaced, CodeAlreadyPlaced},
	{ErrSelfChallenge, CodeSelfChallenge},
	{ErrInsufficientTokens, CodeInsufficientTokens},
	{ErrPlacementNotFound, CodePlacementNotFound},
	{ErrAlreadyRevealed, CodeAlreadyRevealed},
	{ErrNoTokens, CodeNoTokens},
	{ErrCardAlreadyPlaced, CodeCardAlreadyPlaced},
	{ErrNotYourTurn, CodeNotYourTurn},
	{ErrUnsupportedCommand, CodeUnsupported},
}

// CodeOf maps an engine error to the stable code sent to clients.
func CodeOf(err error) Code {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// clone deep-copies everything reachable from s so transitions never alias their input.
func (s State) clone() State {
	c := s
	c.Players = append([]Player(nil), s.Players...)
	if c.Players == nil {
		c.Players = []Player{}
	}
	c.Rounds = make([]Round, len(s.Rounds))
	for i, r := range s.Rounds {
		c.Rounds[i] = r.clone()
	}
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	return c
}

func (r Round) clone() Round {
	c := r
	c.CurrentCard = r.CurrentCard.clone()
	c.ActualYear = cloneInt(r.ActualYear)
	c.Placements = make([]TimelineEntry, len(r.Placements))
	for i, p := range r.Placements {
		c.Placements[i] = p.clone()
	}
	c.Challenges = append([]Challenge(nil), r.Challenges...)
	return c
}

func (c Card) clone() Card {
	c.Year = cloneInt(c.Year)
	return c
}

func (e TimelineEntry) clone() TimelineEntry {
	e.Card = e.Card.clone()
	e.Year = cloneInt(e.Year)
	if e.PlacementCorrect != nil {
		v := *e.PlacementCorrect
		e.PlacementCorrect = &v
	}
	return e
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func playerIndex(s State, id PlayerID) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// activeRound returns the indexed round, if it exists.
func activeRound(s State) (Round, bool) {
	if s.CurrentRound < 0 || s.CurrentRound >= len(s.Rounds) {
		return Round{}, false
	}
	return s.Rounds[s.CurrentRound], true
}
